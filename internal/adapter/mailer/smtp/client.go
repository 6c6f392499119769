// Package smtp sends mail over SMTP with implicit TLS or STARTTLS.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/strogmv/mailrelay/internal/port"
)

type TLSMode string

const (
	TLSImplicit TLSMode = "implicit"
	TLSStartTLS TLSMode = "starttls"
	TLSNone     TLSMode = "none"
)

// TransportError marks a failure talking to the mail server, as opposed to a
// failure building the message.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport lets callers classify the error without importing this package.
func (e *TransportError) Transport() bool {
	return true
}

// IsTransportError reports whether err came from the mail transport.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

type Client struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	TLS      TLSMode
	// DialTimeout bounds the connect when ctx has no earlier deadline.
	DialTimeout time.Duration
}

func (c *Client) Send(ctx context.Context, msg port.EmailMessage) error {
	if c.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	from := c.From
	if from == "" {
		from = c.Username
	}
	if from == "" {
		return fmt.Errorf("smtp from not configured")
	}

	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", msg.To),
		fmt.Sprintf("Subject: %s", msg.Subject),
		fmt.Sprintf("Date: %s", time.Now().Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
	}

	body := msg.Text
	if msg.HTML != "" {
		headers = append(headers, "Content-Type: text/html; charset=UTF-8")
		body = msg.HTML
	} else {
		headers = append(headers, "Content-Type: text/plain; charset=UTF-8")
	}

	data := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	conn, err := c.dial(ctx)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	defer conn.Close()
	if err := c.deliver(conn, from, msg.To, []byte(data)); err != nil {
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	addr := net.JoinHostPort(c.Host, c.Port)
	nd := &net.Dialer{Timeout: timeout}

	var (
		conn net.Conn
		err  error
	)
	if c.TLS == TLSImplicit || c.TLS == "" {
		td := &tls.Dialer{NetDialer: nd, Config: &tls.Config{ServerName: c.Host, MinVersion: tls.VersionTLS12}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = nd.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

func (c *Client) deliver(conn net.Conn, from, to string, data []byte) error {
	cl, err := smtp.NewClient(conn, c.Host)
	if err != nil {
		return &TransportError{Op: "greeting", Err: err}
	}
	defer cl.Close()

	if c.TLS == TLSStartTLS {
		if err := cl.StartTLS(&tls.Config{ServerName: c.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return &TransportError{Op: "starttls", Err: err}
		}
	}
	if c.Username != "" || c.Password != "" {
		if err := cl.Auth(smtp.PlainAuth("", c.Username, c.Password, c.Host)); err != nil {
			return &TransportError{Op: "auth", Err: err}
		}
	}
	if err := cl.Mail(from); err != nil {
		return &TransportError{Op: "mail from", Err: err}
	}
	if err := cl.Rcpt(to); err != nil {
		return &TransportError{Op: "rcpt to", Err: err}
	}
	w, err := cl.Data()
	if err != nil {
		return &TransportError{Op: "data", Err: err}
	}
	if _, err := w.Write(data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if err := w.Close(); err != nil {
		return &TransportError{Op: "data close", Err: err}
	}
	if err := cl.Quit(); err != nil {
		return &TransportError{Op: "quit", Err: err}
	}
	return nil
}

var _ port.Mailer = (*Client)(nil)
