package order

import (
	"github.com/google/uuid"

	"github.com/xenking/shop-orders/internal/domain/apperr"
)

// Pagination bounds for order listings.
const (
	DefaultLimit = 30
	MaxLimit     = 100
)

// Page selects a window of a listing. Page numbers start at 1.
type Page struct {
	Page  int
	Limit int
}

// NewPage validates page and limit, defaulting zero values.
func NewPage(page, limit int) (Page, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 1 {
		return Page{}, apperr.Validation("invalid_page", "page must be at least 1", "page")
	}
	if limit < 1 || limit > MaxLimit {
		return Page{}, apperr.Validation("invalid_limit", "limit must be between 1 and 100", "limit")
	}
	return Page{Page: page, Limit: limit}, nil
}

// Offset is the number of rows to skip.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// TotalPages returns the page count for total rows.
func (p Page) TotalPages(total int) int {
	if p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// Filter narrows the admin order listing.
type Filter struct {
	Page     Page
	Statuses []Status
	UserID   *uuid.UUID
	// PhoneNumber matches as a substring of the customer's phone number.
	PhoneNumber string
	// OrderNumber matches as a prefix of the order number; results are then
	// sorted by order number ascending.
	OrderNumber string
}

// List is a page of orders with the total row count.
type List struct {
	Orders []Order
	Total  int
	Page   Page
}
