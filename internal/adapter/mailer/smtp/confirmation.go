package smtp

import (
	"context"
	"net/url"
	"strings"

	"github.com/strogmv/mailrelay/internal/pkg/circuitbreaker"
	"github.com/strogmv/mailrelay/internal/pkg/templaterender"
	"github.com/strogmv/mailrelay/internal/port"
)

var (
	confirmSubject = templaterender.MustParse("confirm_subject", "Confirm your registration")
	confirmText    = templaterender.MustParse("confirm_text", `Hello,

Please confirm your email address {{.Email}} by opening the link below:

{{.Link}}

If you did not sign up, ignore this message.
`)
	confirmHTML = templaterender.MustParse("confirm_html", `<p>Hello,</p>
<p>Please confirm your email address {{.Email}} by opening the link below:</p>
<p><a href="{{.Link}}">Confirm registration</a></p>
<p>If you did not sign up, ignore this message.</p>
`)
)

// ConfirmationSender renders the confirmation mail and sends it through a
// breaker that only counts transport failures.
type ConfirmationSender struct {
	mailer      port.Mailer
	breaker     *circuitbreaker.Breaker
	frontendURL string
}

func NewConfirmationSender(mailer port.Mailer, breaker *circuitbreaker.Breaker, frontendURL string) *ConfirmationSender {
	return &ConfirmationSender{
		mailer:      mailer,
		breaker:     breaker,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// ConfirmationLink builds the link the recipient opens to confirm.
func (s *ConfirmationSender) ConfirmationLink(token string) string {
	return s.frontendURL + "/auth/register_confirm?token=" + url.QueryEscape(token)
}

func (s *ConfirmationSender) SendConfirmation(ctx context.Context, recipient, token string) error {
	data := map[string]string{"Email": recipient, "Link": s.ConfirmationLink(token)}
	subject, err := confirmSubject.Render(data)
	if err != nil {
		return err
	}
	text, err := confirmText.Render(data)
	if err != nil {
		return err
	}
	html, err := confirmHTML.Render(data)
	if err != nil {
		return err
	}
	msg := port.EmailMessage{To: recipient, Subject: subject, Text: text, HTML: html}

	if s.breaker == nil {
		return s.mailer.Send(ctx, msg)
	}
	if !s.breaker.Allow() {
		return &TransportError{Op: "send", Err: circuitbreaker.ErrOpen}
	}
	err = s.mailer.Send(ctx, msg)
	// A non-transport error still means the server answered, so it closes a
	// half-open breaker like a success does.
	if IsTransportError(err) {
		s.breaker.RecordFailure()
	} else {
		s.breaker.RecordSuccess()
	}
	return err
}

var _ port.ConfirmationSender = (*ConfirmationSender)(nil)
