package main

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/coupon"
)

// header is the expected column order of coupon files.
var header = []string{
	"offer_code", "offer_type", "discount_type", "discount_value",
	"max_discount_value", "min_order_value", "start_date", "end_date",
	"usage_limit_per_user", "description",
}

// lineError reports a rejected row.
type lineError struct {
	File string
	Line int
	Err  error
}

func (e lineError) Error() string {
	return e.File + ":" + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

// parseFile reads a CSV coupon file. Malformed rows are collected as
// lineErrors and skipped; an unreadable file or header is an error.
func parseFile(name string, r io.Reader) ([]coupon.Coupon, []lineError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "read header")
	}
	for i, col := range header {
		if strings.TrimSpace(strings.ToLower(head[i])) != col {
			return nil, nil, errors.Errorf("column %d is %q, want %q", i+1, head[i], col)
		}
	}

	var (
		out  []coupon.Coupon
		bad  []lineError
		line = 1
	)
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				bad = append(bad, lineError{File: name, Line: line, Err: err})
				continue
			}
			return nil, nil, errors.Wrap(err, "read row")
		}
		c, err := parseRow(rec)
		if err != nil {
			bad = append(bad, lineError{File: name, Line: line, Err: err})
			continue
		}
		out = append(out, c)
	}
	return out, bad, nil
}

func parseRow(rec []string) (coupon.Coupon, error) {
	c := coupon.Coupon{
		ID:           uuid.New(),
		OfferCode:    strings.TrimSpace(rec[0]),
		OfferType:    coupon.OfferType(strings.TrimSpace(rec[1])),
		DiscountType: coupon.DiscountType(strings.TrimSpace(rec[2])),
		Description:  strings.TrimSpace(rec[9]),
		IsActive:     true,
	}
	if c.OfferCode == "" {
		return c, errors.New("offer_code is empty")
	}
	if c.OfferType == "" {
		c.OfferType = coupon.OfferGeneral
	}
	if c.OfferType != coupon.OfferGeneral && c.OfferType != coupon.OfferNewUser {
		return c, errors.Errorf("unknown offer_type %q", c.OfferType)
	}
	if !c.DiscountType.Valid() {
		return c, errors.Errorf("unknown discount_type %q", c.DiscountType)
	}

	var err error
	if c.DiscountValue, err = decimal.NewFromString(rec[3]); err != nil || !c.DiscountValue.IsPositive() {
		return c, errors.Errorf("discount_value %q must be a positive number", rec[3])
	}
	if c.DiscountType == coupon.DiscountPercentage && c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return c, errors.Errorf("percentage %s exceeds 100", c.DiscountValue)
	}
	if s := strings.TrimSpace(rec[4]); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil || v.IsNegative() {
			return c, errors.Errorf("max_discount_value %q must be a number", s)
		}
		c.MaxDiscountValue = &v
	}
	if s := strings.TrimSpace(rec[5]); s != "" {
		if c.MinOrderValue, err = decimal.NewFromString(s); err != nil {
			return c, errors.Errorf("min_order_value %q must be a number", s)
		}
	}
	if c.StartDate, err = parseDate(rec[6]); err != nil {
		return c, errors.Wrap(err, "start_date")
	}
	if c.EndDate, err = parseDate(rec[7]); err != nil {
		return c, errors.Wrap(err, "end_date")
	}
	if !c.EndDate.After(c.StartDate) {
		return c, errors.New("end_date must be after start_date")
	}
	if s := strings.TrimSpace(rec[8]); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return c, errors.Errorf("usage_limit_per_user %q must be a non-negative integer", s)
		}
		c.UsageLimitPerUser = &n
	}
	return c, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

// dedupe keeps the first coupon of every offer code, compared
// case-insensitively, and returns the dropped codes. The bloom filter
// narrows the exact comparison to codes that may repeat.
func dedupe(coupons []coupon.Coupon, fpr float64) (kept []coupon.Coupon, dropped []string) {
	if len(coupons) == 0 {
		return nil, nil
	}
	filter := bloom.NewWithEstimates(uint(len(coupons)), fpr)
	candidates := make(map[string]bool)
	for _, c := range coupons {
		code := strings.ToUpper(c.OfferCode)
		if filter.TestAndAddString(code) {
			candidates[code] = true
		}
	}

	seen := make(map[string]bool, len(candidates))
	kept = make([]coupon.Coupon, 0, len(coupons))
	for _, c := range coupons {
		code := strings.ToUpper(c.OfferCode)
		if candidates[code] {
			if seen[code] {
				dropped = append(dropped, c.OfferCode)
				continue
			}
			seen[code] = true
		}
		kept = append(kept, c)
	}
	return kept, dropped
}
