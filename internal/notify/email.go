// Package notify tells business owners about new orders and reservations
// the moment the pipeline records them.
package notify

import "context"

// EmailMessage is one outbound email.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
	HTML    string
}

// EmailSender sends emails. Implementations can be swapped (SES, SMTP, a
// log-only sender for local runs) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}
