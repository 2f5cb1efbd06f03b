// Package store keeps a journal of sent transactions and their ack outcome.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HsiangNianian/AMonItor/sdk/protocol"
)

const StatusPending = "pending"

var ErrNotFound = errors.New("transaction not found")

type Record struct {
	TransactionID string           `json:"transaction_id"`
	Action        protocol.Action  `json:"action,omitempty"`
	Target        string           `json:"target,omitempty"`
	Status        string           `json:"status"`
	Message       protocol.Message `json:"message,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type Store interface {
	Begin(ctx context.Context, transactionID string, action protocol.Action, target string) error
	Settle(ctx context.Context, transactionID string, status protocol.Status, message protocol.Message) error
	Get(ctx context.Context, transactionID string) (Record, error)
}

type entry struct {
	record   Record
	expireAt time.Time
}

type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]entry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]entry),
	}
}

func (m *MemoryStore) Begin(_ context.Context, transactionID string, action protocol.Action, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.records[transactionID] = entry{
		record: Record{
			TransactionID: transactionID,
			Action:        action,
			Target:        target,
			Status:        StatusPending,
			UpdatedAt:     now,
		},
		expireAt: now.Add(m.ttl),
	}
	return nil
}

func (m *MemoryStore) Settle(_ context.Context, transactionID string, status protocol.Status, message protocol.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.records[transactionID]
	if !ok || now.After(e.expireAt) {
		e = entry{record: Record{TransactionID: transactionID}}
	}
	e.record.Status = string(status)
	e.record.Message = message
	e.record.UpdatedAt = now
	e.expireAt = now.Add(m.ttl)
	m.records[transactionID] = e
	return nil
}

func (m *MemoryStore) Get(_ context.Context, transactionID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.records[transactionID]
	if !ok || m.now().After(e.expireAt) {
		return Record{}, ErrNotFound
	}
	return e.record, nil
}
