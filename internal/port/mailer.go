package port

import "context"

type EmailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// ConfirmationSender delivers a registration confirmation to recipient.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, recipient, token string) error
}
