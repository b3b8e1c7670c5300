package contacts

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "blastbot/pkg/logx"
)

var csvHeader = []string{"name", "phone", "group"}

// csvStore keeps the whole book in one CSV file with a name,phone,group
// header. Load tolerates a missing file (empty book) and short rows
// (missing group falls back to the default).
type csvStore struct {
	mu   sync.Mutex
	path string
	log  logx.Logger
}

func openCSV(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, storeErr("open", errors.New("contacts path is required for csv driver"))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeErr("open", err)
		}
	}
	return &csvStore{path: path, log: log}, nil
}

func (s *csvStore) Load(ctx context.Context) ([]Recipient, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := readCSVFile(s.path)
	if err != nil {
		return nil, storeErr("load", err)
	}
	return rows, nil
}

func (s *csvStore) Save(ctx context.Context, rows []Recipient) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeCSVFile(s.path, rows); err != nil {
		return storeErr("save", err)
	}
	return nil
}

func (s *csvStore) Close() error { return nil }

// readCSVFile reads a contact CSV. A missing file is an empty book, not an
// error. The header row is skipped when present.
func readCSVFile(path string) ([]Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	rows := make([]Recipient, 0, len(records))
	for i, rec := range records {
		if i == 0 && isHeaderRow(rec) {
			continue
		}
		if len(rec) == 0 {
			continue
		}
		c := Recipient{Name: field(rec, 0)}
		c.Phone = field(rec, 1)
		c.Group = NormalizeGroup(field(rec, 2))
		if c.Name == "" && c.Phone == "" {
			continue
		}
		rows = append(rows, c)
	}
	return rows, nil
}

// writeCSVFile rewrites the whole file through a temp file + rename so a
// crash mid-save cannot truncate the book.
func writeCSVFile(path string, rows []Recipient) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return err
	}
	for _, c := range rows {
		group := c.Group
		if group == "" {
			group = DefaultGroup
		}
		if err := w.Write([]string{c.Name, c.Phone, string(group)}); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func isHeaderRow(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(rec[0]), "name")
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
