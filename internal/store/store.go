// Package store keeps a history of predictions served over HTTP.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one served prediction.
type Record struct {
	ID         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	Outcome    string    `json:"outcome"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	LeafRatio  float64   `json:"leaf_ratio"`
	Fallback   bool      `json:"fallback"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store defines how prediction records are kept.
type Store interface {
	// Add stores a single record.
	Add(ctx context.Context, r Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	Close()
}

// Memory is a fixed-size ring of the most recent records.
type Memory struct {
	mu      sync.Mutex
	records []Record
	next    int
	full    bool
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1
	}
	return &Memory{records: make([]Record, size)}
}

func (m *Memory) Add(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[m.next] = r
	m.next = (m.next + 1) % len(m.records)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.records)
	}
	if limit > n {
		limit = n
	}

	out := make([]Record, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.records)) % len(m.records)
		out = append(out, m.records[idx])
	}
	return out, nil
}

func (m *Memory) Close() {}
