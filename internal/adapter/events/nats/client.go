// Package nats carries delivery envelopes over NATS JetStream.
package nats

import (
	"fmt"
	"log/slog"
	"time"

	natspkg "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type Client struct {
	nc *natspkg.Conn
	js jetstream.JetStream
}

// NewClient connects with unlimited reconnects and logs connection changes.
func NewClient(url, name string) (*Client, error) {
	nc, err := natspkg.Connect(url,
		natspkg.Name(name),
		natspkg.MaxReconnects(-1),
		natspkg.ReconnectWait(2*time.Second),
		natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		natspkg.ReconnectHandler(func(nc *natspkg.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		natspkg.ClosedHandler(func(_ *natspkg.Conn) {
			slog.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Client{nc: nc, js: js}, nil
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Close drains pending publishes before closing.
func (c *Client) Close() {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}

func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.Status() == natspkg.CONNECTED
}
