// Package audit writes the delivery record: one line per dispatch outcome,
// append-only and human-readable. The record is a domain artifact with a
// frozen line format, which is why it does not go through the structured
// logger.
package audit

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"blastbot/internal/phone"
	logx "blastbot/pkg/logx"
)

const lineTimeFormat = "2006-01-02 15:04:05"

// excerptRunes is how much of the message body makes it into the record.
const excerptRunes = 50

const StatusSuccess = "SUCCESS"

// FailureStatus renders the failed form: "FAILED: <reason>".
func FailureStatus(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	return "FAILED: " + reason
}

// Entry is one delivery outcome.
type Entry struct {
	Time    time.Time
	Phone   phone.Number
	Status  string
	Message string
}

// FormatLine renders an entry:
//
//	[2025-03-10 14:32:05] +911234567890 | SUCCESS | Hello there...
//
// The excerpt is the first 50 runes of the message and always carries the
// trailing ellipsis, short messages included.
func FormatLine(e Entry) string {
	return fmt.Sprintf("[%s] %s | %s | %s...",
		e.Time.Format(lineTimeFormat), e.Phone, e.Status, excerpt(e.Message))
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) > excerptRunes {
		return string(r[:excerptRunes])
	}
	return s
}

// Log is the delivery record sink.
type Log interface {
	Append(e Entry) error
	Close() error
}

// NewNop returns a sink that discards everything (tests, dry wiring).
func NewNop() Log { return nopLog{} }

type nopLog struct{}

func (nopLog) Append(Entry) error { return nil }
func (nopLog) Close() error       { return nil }

type fileLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
	log  logx.Logger
}

// NewFileLog opens (creating if needed) the record file for appending.
func NewFileLog(path string, log logx.Logger) (Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit: empty log path")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %q: %w", path, err)
	}
	return &fileLog{path: path, f: f, log: log}, nil
}

func (l *fileLog) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	line := FormatLine(e) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return fmt.Errorf("audit: log %q is closed", l.path)
	}
	if _, err := l.f.WriteString(line); err != nil {
		return fmt.Errorf("audit: append to %q: %w", l.path, err)
	}
	return nil
}

func (l *fileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
