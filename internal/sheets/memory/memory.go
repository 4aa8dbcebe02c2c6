// Package memory is an in-memory sheets.Exporter for tests and for running
// without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"pecunia/internal/core"
	"pecunia/internal/sheets"
)

type Exporter struct {
	mu   sync.Mutex
	rows []core.Transaction

	// FailNext makes the next Export call return this error once.
	FailNext error
}

var _ sheets.Exporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

func (m *Exporter) Export(_ context.Context, t core.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return "", err
	}

	m.rows = append(m.rows, t)
	return fmt.Sprintf("row-%d", len(m.rows)), nil
}

// Rows returns a copy of everything exported so far.
func (m *Exporter) Rows() []core.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Transaction(nil), m.rows...)
}
