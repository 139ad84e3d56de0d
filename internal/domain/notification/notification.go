// Package notification defines the outbound message contract used for
// best-effort customer notifications.
package notification

import "context"

// Message is an email-style notification.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages. Implementations may be slow or fail; callers
// treat delivery as best-effort.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
