package client

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var errTransportDown = errors.New("transport down")

// fakeTransport plays the server side: in feeds Receive, sent collects Send.
type fakeTransport struct {
	in   chan []byte
	sent chan []byte

	mu      sync.Mutex
	sendErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 64),
		sent:   make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-f.closed:
		return errTransportDown
	default:
	}
	f.sent <- data
	return nil
}

func (f *fakeTransport) Receive() ([]byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-f.closed:
		return nil, errTransportDown
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) failSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) push(t *testing.T, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	f.in <- b
}

type sentRequest struct {
	TransactionID string          `json:"transaction_id"`
	Action        protocol.Action `json:"action"`
	Params        json.RawMessage `json:"params"`
}

func (f *fakeTransport) next(t *testing.T) sentRequest {
	t.Helper()
	select {
	case b := <-f.sent:
		var req sentRequest
		require.NoError(t, json.Unmarshal(b, &req))
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for an outbound request")
	}
	return sentRequest{}
}

func welcome(id string) map[string]any {
	return map[string]any{
		"action": "ack",
		"status": "success",
		"data":   map[string]string{"client_id": id},
	}
}

func ack(transactionID string, status protocol.Status, message protocol.Message) *protocol.Envelope {
	return &protocol.Envelope{
		TransactionID: transactionID,
		Action:        protocol.ActionAck,
		Status:        status,
		Message:       message,
		Timestamp:     time.Now().Unix(),
	}
}

func publish(t *testing.T, channel string, payload any) *protocol.Envelope {
	t.Helper()
	raw, err := protocol.MarshalPayload(payload)
	require.NoError(t, err)
	params, err := json.Marshal(protocol.PublishParams{Channel: channel, Payload: raw})
	require.NoError(t, err)
	return &protocol.Envelope{Action: protocol.ActionPublish, Params: params}
}

// newReadyClient builds a session already past the handshake whose reader
// goroutine is not running, so tests drive dispatch directly.
func newReadyClient(t *testing.T, opts ...Option) (*Client, *fakeTransport, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	o := defaultOptions()
	o.logger = logger
	for _, opt := range opts {
		opt(&o)
	}
	ft := newFakeTransport()
	c := &Client{
		transport:    ft,
		logger:       o.logger,
		journal:      o.journal,
		onError:      o.onError,
		state:        StateReady,
		id:           "self",
		transactions: newTransactions(),
		channels:     newChannels(),
		handlers:     newHandlers(),
		done:         make(chan struct{}),
	}
	return c, ft, hook
}
