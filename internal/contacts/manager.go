package contacts

import (
	"context"
	"strings"
	"sync"

	logx "blastbot/pkg/logx"
)

// Manager keeps an in-memory copy of the book in front of a Store.
// Mutations are written through, and the cached copy is only replaced
// after the store accepted the new rows.
type Manager struct {
	mu    sync.RWMutex
	store Store
	log   logx.Logger
	book  []Recipient
}

func NewManager(ctx context.Context, store Store, log logx.Logger) (*Manager, error) {
	m := &Manager{store: store, log: log}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload discards the cached book and reads it back from the store.
func (m *Manager) Reload(ctx context.Context) error {
	rows, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.book = rows
	m.mu.Unlock()
	m.log.Debug("contact book loaded", logx.Int("contacts", len(rows)))
	return nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.book)
}

// All returns the book in store order. The slice is a copy.
func (m *Manager) All() []Recipient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Recipient, len(m.book))
	copy(out, m.book)
	return out
}

func (m *Manager) ByGroup(group string) []Recipient {
	g := NormalizeGroup(group)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Recipient
	for _, c := range m.book {
		if c.Group == g {
			out = append(out, c)
		}
	}
	return out
}

// PhonesByGroup returns the phone column for one group, duplicates and
// all. Callers that fan out sends get one send per row.
func (m *Manager) PhonesByGroup(group string) []string {
	rows := m.ByGroup(group)
	out := make([]string, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.Phone)
	}
	return out
}

// Add appends a row as entered. The book is allowed to hold the same
// phone more than once.
func (m *Manager) Add(ctx context.Context, c Recipient) error {
	c.Group = NormalizeGroup(string(c.Group))
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]Recipient, len(m.book), len(m.book)+1)
	copy(next, m.book)
	next = append(next, c)
	if err := m.store.Save(ctx, next); err != nil {
		return err
	}
	m.book = next
	m.log.Info("contact added", logx.String("phone", c.Phone), logx.String("group", string(c.Group)))
	return nil
}

// Remove drops every row whose phone matches exactly as stored.
// Returns ErrNotFound when nothing matched.
func (m *Manager) Remove(ctx context.Context, phone string) error {
	phone = strings.TrimSpace(phone)
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]Recipient, 0, len(m.book))
	removed := 0
	for _, c := range m.book {
		if c.Phone == phone {
			removed++
			continue
		}
		next = append(next, c)
	}
	if removed == 0 {
		return ErrNotFound
	}
	if err := m.store.Save(ctx, next); err != nil {
		return err
	}
	m.book = next
	m.log.Info("contact removed", logx.String("phone", phone), logx.Int("rows", removed))
	return nil
}

// ImportCSV merges rows from path into the book and dedupes the merged
// result by phone, keeping the last occurrence. Imported rows therefore
// win over existing ones with the same phone. Returns how many rows the
// file contributed before deduplication.
func (m *Manager) ImportCSV(ctx context.Context, path string) (int, error) {
	imported, err := readCSVFile(path)
	if err != nil {
		return 0, storeErr("import", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	merged := make([]Recipient, 0, len(m.book)+len(imported))
	merged = append(merged, m.book...)
	merged = append(merged, imported...)
	next := dedupeLastWins(merged)

	if err := m.store.Save(ctx, next); err != nil {
		return 0, err
	}
	m.book = next
	m.log.Info("contacts imported",
		logx.String("path", path),
		logx.Int("imported", len(imported)),
		logx.Int("contacts", len(next)))
	return len(imported), nil
}

// ExportCSV writes the current book to path, whatever the backing store is.
func (m *Manager) ExportCSV(ctx context.Context, path string) error {
	rows := m.All()
	if err := writeCSVFile(path, rows); err != nil {
		return storeErr("export", err)
	}
	m.log.Info("contacts exported", logx.String("path", path), logx.Int("contacts", len(rows)))
	return nil
}

// dedupeLastWins keeps the last row per phone. Surviving rows stay in
// their original relative order.
func dedupeLastWins(rows []Recipient) []Recipient {
	seen := make(map[string]struct{}, len(rows))
	kept := make([]Recipient, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if _, dup := seen[rows[i].Phone]; dup {
			continue
		}
		seen[rows[i].Phone] = struct{}{}
		kept = append(kept, rows[i])
	}
	// kept is in reverse order.
	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}
