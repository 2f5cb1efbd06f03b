// Package client is a session over a single WebSocket connection to a
// relay server. It correlates every action with its ack by transaction id
// and routes pushed events to channel subscribers and action handlers.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/HsiangNianian/AMonItor/sdk/internal/ws"
	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/sirupsen/logrus"
)

var (
	// ErrHandshake is returned by Connect and Open when the first message
	// is not a usable welcome.
	ErrHandshake = errors.New("handshake failed")
	// ErrClosed is reported once the session's transport has closed.
	ErrClosed = errors.New("session closed")
	// ErrNotReady is returned by action methods before the handshake completes.
	ErrNotReady = errors.New("session not ready")
	// ErrCallbackPanic wraps a panic recovered from a caller's callback.
	ErrCallbackPanic = errors.New("callback panicked")
)

// Transport carries serialized envelopes. Receive returns io.EOF once the
// peer has closed the connection cleanly.
type Transport interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

type State int

const (
	StateConnecting State = iota
	StateAwaitingWelcome
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingWelcome:
		return "awaiting_welcome"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Client is one session: the assigned identity, the pending transactions,
// the channel subscriptions and the action handlers of one connection.
type Client struct {
	transport Transport
	logger    logrus.FieldLogger
	journal   Journal
	onError   func(error)

	mu    sync.RWMutex
	state State
	id    string
	err   error

	transactions *transactions
	channels     *channels
	handlers     *handlers

	done     chan struct{}
	doneOnce sync.Once
}

// Connect dials url and completes the handshake.
func Connect(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dialCfg := ws.DialConfig{Header: o.header, HandshakeTimeout: o.handshakeTimeout}
	if s := o.security; s != nil {
		tlsCfg, err := ws.LoadTLSConfig(ws.TLSFiles{
			CAFile:         s.CAFile,
			CertFile:       s.CertFile,
			KeyFile:        s.KeyFile,
			Passphrase:     s.Passphrase,
			VerifyHostname: s.VerifyHostname,
		})
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", url, err)
		}
		dialCfg.TLS = tlsCfg
	}

	o.logger.WithField("url", url).Debug("dial relay")
	conn, err := ws.Dial(ctx, url, dialCfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return open(ctx, conn, o)
}

// Open runs the handshake over an already established transport.
func Open(ctx context.Context, t Transport, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return open(ctx, t, o)
}

func open(ctx context.Context, t Transport, o options) (*Client, error) {
	c := &Client{
		transport:    t,
		logger:       o.logger,
		journal:      o.journal,
		onError:      o.onError,
		state:        StateConnecting,
		transactions: newTransactions(),
		channels:     newChannels(),
		handlers:     newHandlers(),
		done:         make(chan struct{}),
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.handshakeTimeout)
		defer cancel()
	}

	c.setState(StateAwaitingWelcome)

	type first struct {
		data []byte
		err  error
	}
	ch := make(chan first, 1)
	go func() {
		data, err := t.Receive()
		ch <- first{data: data, err: err}
	}()

	var msg first
	select {
	case msg = <-ch:
	case <-ctx.Done():
		_ = t.Close()
		c.shutdown(ctx.Err())
		return nil, fmt.Errorf("wait for welcome: %w", ctx.Err())
	}

	if msg.err != nil {
		_ = t.Close()
		c.shutdown(msg.err)
		return nil, fmt.Errorf("wait for welcome: %w", msg.err)
	}

	id, err := welcomeID(msg.data)
	if err != nil {
		_ = t.Close()
		c.shutdown(err)
		return nil, err
	}

	c.mu.Lock()
	c.id = id
	c.state = StateReady
	c.mu.Unlock()
	c.logger.WithField("client_id", id).Info("relay session ready")

	go c.readLoop()
	return c, nil
}

func welcomeID(data []byte) (string, error) {
	env, err := protocol.Decode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	welcome, err := env.Welcome()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if welcome.ClientID == "" {
		return "", fmt.Errorf("%w: welcome carries no client_id", ErrHandshake)
	}
	return welcome.ClientID, nil
}

// ID is the identity the server assigned in the welcome message.
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// State is the current lifecycle state of the session.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Done is closed when the session reaches StateClosed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the session closed; nil while it is open.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Subscriptions lists the channels with a registered callback.
func (c *Client) Subscriptions() []string {
	return c.channels.names()
}

// Pending is the number of transactions still waiting for an ack.
func (c *Client) Pending() int {
	return c.transactions.len()
}

// On registers the global handler for an action kind, replacing any
// previous one. A nil handler removes it.
func (c *Client) On(action protocol.Action, h Handler) {
	c.handlers.set(action, h)
}

// Close closes the transport. Pending transactions are left unresolved.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return c.transport.Close()
}

func (c *Client) readLoop() {
	for {
		data, err := c.transport.Receive()
		if err != nil {
			c.shutdown(err)
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			c.report(err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) shutdown(cause error) {
	c.doneOnce.Do(func() {
		if cause == nil || errors.Is(cause, io.EOF) {
			cause = ErrClosed
		} else if !errors.Is(cause, ErrClosed) {
			cause = fmt.Errorf("%w: %w", ErrClosed, cause)
		}
		c.mu.Lock()
		c.state = StateClosed
		c.err = cause
		id := c.id
		c.mu.Unlock()
		close(c.done)
		c.logger.WithFields(logrus.Fields{
			"client_id": id,
			"pending":   c.transactions.len(),
		}).Infof("relay session closed: %v", cause)
	})
}

func (c *Client) report(err error) {
	c.logger.WithField("client_id", c.ID()).Errorf("dispatch: %v", err)
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Client) ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateReady:
		return nil
	case StateClosed:
		return c.err
	}
	return ErrNotReady
}
