// Package cache guarda snapshots inmutables de Result por wallet|mode|guard.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

type memEntry struct {
	result  domain.Result
	expires time.Time
}

// Memory es un ports.ResultCache en proceso. Copia al guardar y al leer para
// que ningún llamante comparta el slice de errores con la caché.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemory crea una caché en memoria; ttl <= 0 significa sin expiración.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// Get devuelve una copia del snapshot guardado.
func (m *Memory) Get(_ context.Context, key string) (domain.Result, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return domain.Result{}, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return domain.Result{}, false, nil
	}
	return e.result.Clone(), true, nil
}

// Put guarda una copia del snapshot.
func (m *Memory) Put(_ context.Context, key string, r domain.Result) error {
	e := memEntry{result: r.Clone()}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Len devuelve el número de entradas (incluidas las expiradas aún no purgadas).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
