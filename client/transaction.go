package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/HsiangNianian/AMonItor/sdk/protocol"
)

// AckError is the failure outcome of a transaction: the server answered
// with status failed. The full ack envelope is kept.
type AckError struct {
	Action   protocol.Action
	Envelope *protocol.Envelope
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s rejected: transaction_id=%s message=%s", e.Action, e.Envelope.TransactionID, e.Envelope.Message)
}

// Reason returns the server's reason code.
func (e *AckError) Reason() protocol.Message {
	return e.Envelope.Message
}

// Transaction is a sent action waiting for its ack. It settles at most once.
type Transaction struct {
	id     string
	action protocol.Action
	target string

	once sync.Once
	done chan struct{}
	ack  *protocol.Envelope
	err  error

	// run after a failed ack, before waiters are released
	rollback func()
}

func newTransaction(id string, action protocol.Action, target string) *Transaction {
	return &Transaction{
		id:     id,
		action: action,
		target: target,
		done:   make(chan struct{}),
	}
}

func (t *Transaction) ID() string { return t.id }

func (t *Transaction) Action() protocol.Action { return t.action }

// Done is closed once the ack has arrived.
func (t *Transaction) Done() <-chan struct{} { return t.done }

// Await blocks until the ack arrives or ctx ends. On success it returns the
// ack envelope; on a failed ack it returns the envelope together with an
// *AckError. A ctx error does not retract the transaction.
func (t *Transaction) Await(ctx context.Context) (*protocol.Envelope, error) {
	select {
	case <-t.done:
		return t.ack, t.err
	case <-ctx.Done():
		return nil, fmt.Errorf("await %s transaction %s: %w", t.action, t.id, ctx.Err())
	}
}

func (t *Transaction) settle(env *protocol.Envelope) bool {
	settled := false
	t.once.Do(func() {
		t.ack = env
		if !env.Succeeded() {
			t.err = &AckError{Action: t.action, Envelope: env}
			if t.rollback != nil {
				t.rollback()
			}
		}
		close(t.done)
		settled = true
	})
	return settled
}

type transactions struct {
	mu      sync.Mutex
	pending map[string]*Transaction
}

func newTransactions() *transactions {
	return &transactions{pending: make(map[string]*Transaction)}
}

// add parks tx; it refuses an id that is already pending.
func (r *transactions) add(tx *Transaction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[tx.id]; ok {
		return false
	}
	r.pending[tx.id] = tx
	return true
}

// take removes and returns the pending transaction for id, or nil.
func (r *transactions) take(id string) *Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.pending[id]
	if !ok {
		return nil
	}
	delete(r.pending, id)
	return tx
}

func (r *transactions) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
