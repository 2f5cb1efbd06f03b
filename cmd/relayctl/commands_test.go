package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HsiangNianian/AMonItor/sdk/internal/store"
	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ackServer welcomes every client as "cli" and acks each request, failing
// sends to anyone but "peer".
func ackServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"action": "ack", "data": map[string]string{"client_id": "cli"}})
		for {
			var req struct {
				TransactionID string          `json:"transaction_id"`
				Action        protocol.Action `json:"action"`
				Params        struct {
					ToClientID string `json:"to_client_id"`
				} `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			status, message := protocol.StatusSuccess, protocol.MessageOK
			if req.Action == protocol.ActionSend && req.Params.ToClientID != "peer" {
				status, message = protocol.StatusFailed, protocol.MessageUnprocessableEntity
			}
			_ = conn.WriteJSON(map[string]any{
				"transaction_id": req.TransactionID,
				"action":         "ack",
				"status":         status,
				"message":        message,
			})
		}
	}))
	t.Cleanup(s.Close)
	return strings.Replace(s.URL, "http", "ws", 1)
}

func run(t *testing.T, a *app, args ...string) (string, string, error) {
	t.Helper()
	return runFor(t, 5*time.Second, a, args...)
}

func runFor(t *testing.T, timeout time.Duration, a *app, args ...string) (string, string, error) {
	t.Helper()
	a.logger.SetOutput(&bytes.Buffer{})
	root := newRootCmd(a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := execute(ctx, root)
	return out.String(), errOut.String(), err
}

func TestParsePayload(t *testing.T) {
	raw, err := parsePayload(`{"message":"EHLO"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"EHLO"}`, string(raw))

	_, err = parsePayload(`{message}`)
	assert.ErrorIs(t, err, errInvalidPayload)
}

func TestActionCommands(t *testing.T) {
	t.Setenv("RELAY_TLS_ENABLED", "false")
	url := ackServer(t)

	cases := []struct {
		desc   string
		args   []string
		status protocol.Status
		err    bool
	}{
		{desc: "publish", args: []string{"publish", "welcome", `{"message":"EHLO"}`}, status: protocol.StatusSuccess},
		{desc: "broadcast", args: []string{"broadcast", `"EHLO"`}, status: protocol.StatusSuccess},
		{desc: "send to peer", args: []string{"send", "peer", `{"n":1}`}, status: protocol.StatusSuccess},
		{desc: "send to unknown", args: []string{"send", "ghost", `{"n":1}`}, status: protocol.StatusFailed, err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			a := newApp()
			journal := store.NewMemoryStore(time.Hour)
			a.journal = journal

			out, _, err := run(t, a, append(tc.args, "--url", url, "--raw")...)
			if tc.err {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			var ack protocol.Envelope
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &ack))
			assert.Equal(t, tc.status, ack.Status)

			rec, err := journal.Get(context.Background(), ack.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, string(tc.status), rec.Status)
		})
	}
}

func TestInvalidPayloadRejected(t *testing.T) {
	a := newApp()
	_, errOut, err := run(t, a, "broadcast", "{nope", "--url", "ws://127.0.0.1:1")
	assert.ErrorIs(t, err, errInvalidPayload)
	assert.Contains(t, errOut, "payload is not valid JSON")
}

func TestUsage(t *testing.T) {
	a := newApp()
	out, _, err := run(t, a, "publish", "only-channel")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, out, "usage:")
}

func TestStatusCommand(t *testing.T) {
	a := newApp()
	journal := store.NewMemoryStore(time.Hour)
	require.NoError(t, journal.Begin(context.Background(), "t1", protocol.ActionPublish, "welcome"))
	a.journal = journal

	out, _, err := run(t, a, "status", "t1", "--raw")
	require.NoError(t, err)

	var rec store.Record
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &rec))
	assert.Equal(t, "t1", rec.TransactionID)
	assert.Equal(t, store.StatusPending, rec.Status)

	_, _, err = run(t, a, "status", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBadLogLevel(t *testing.T) {
	t.Setenv("RELAY_LOG_LEVEL", "loud")
	a := newApp()
	_, errOut, err := run(t, a, "status", "t1")
	assert.Error(t, err)
	assert.Contains(t, errOut, "parse log level failed")
	assert.Equal(t, logrus.InfoLevel, a.logger.GetLevel())
}

func TestSetupErrorsPrinted(t *testing.T) {
	cases := []struct {
		desc string
		args []string
		want string
	}{
		{desc: "missing config file", args: []string{"status", "t1", "--config", "/nonexistent/relay.hujson"}, want: "read config failed"},
		{desc: "unknown command", args: []string{"frobnicate"}, want: "unknown command"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, errOut, err := run(t, newApp(), tc.args...)
			require.Error(t, err)
			assert.Contains(t, errOut, tc.want)
		})
	}
}

func TestSubscribeCommand(t *testing.T) {
	t.Setenv("RELAY_TLS_ENABLED", "false")
	url := ackServer(t)

	a := newApp()
	a.journal = store.NewMemoryStore(time.Hour)
	hook := test.NewLocal(a.logger)

	_, errOut, err := runFor(t, time.Second, a, "subscribe", "c1", "--url", url)
	require.NoError(t, err)
	assert.Empty(t, errOut)

	var subscribed bool
	for _, e := range hook.AllEntries() {
		if e.Message == "subscribed" && e.Data["channel"] == "c1" {
			subscribed = true
		}
	}
	assert.True(t, subscribed, "expected channel c1 to be subscribed")

	out, _, err := run(t, newApp(), "subscribe", "c1", "c2")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, out, "usage:")
}

func TestCloseJournal(t *testing.T) {
	mr := miniredis.RunT(t)
	journal := store.NewRedisStore(mr.Addr(), time.Hour)

	a := newApp()
	a.journal = journal
	a.close()

	_, err := journal.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, redis.ErrClosed)

	newApp().close()
}
