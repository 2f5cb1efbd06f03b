package client

import (
	"context"
	"net/http"
	"time"

	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/sirupsen/logrus"
)

// Journal records sent transactions and their outcome. Journal failures are
// logged and never fail the action itself.
type Journal interface {
	Begin(ctx context.Context, transactionID string, action protocol.Action, target string) error
	Settle(ctx context.Context, transactionID string, status protocol.Status, message protocol.Message) error
}

// Security is the TLS material used by Connect. File paths left empty fall
// back to ca.crt, client.crt and client.key.
type Security struct {
	CAFile     string
	CertFile   string
	KeyFile    string
	Passphrase string
	// VerifyHostname enables the server name check. The certificate chain
	// is always verified against the CA.
	VerifyHostname bool
}

type options struct {
	logger           logrus.FieldLogger
	journal          Journal
	onError          func(error)
	security         *Security
	header           http.Header
	handshakeTimeout time.Duration
}

type Option func(*options)

func defaultOptions() options {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return options{
		logger:           logger,
		handshakeTimeout: 10 * time.Second,
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithJournal(j Journal) Option {
	return func(o *options) {
		o.journal = j
	}
}

// WithErrorHandler sets a hook for errors raised while dispatching: inbound
// messages that cannot be decoded and callbacks that panic.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithSecurity makes Connect dial with mutual TLS.
func WithSecurity(s Security) Option {
	return func(o *options) {
		o.security = &s
	}
}

// WithHeader adds HTTP headers to the WebSocket upgrade request.
func WithHeader(h http.Header) Option {
	return func(o *options) {
		o.header = h
	}
}

// WithHandshakeTimeout bounds the wait for the welcome message when the
// caller's context carries no deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}
