package bulk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"blastbot/internal/contacts"
	"blastbot/internal/eventbus"
	logx "blastbot/pkg/logx"
)

// scriptDispatcher fails phones listed in failWith and records call order.
type scriptDispatcher struct {
	mu       sync.Mutex
	failWith map[string]string
	phones   []string
	texts    []string
	sent     chan struct{}
}

func (d *scriptDispatcher) DispatchAfterLookahead(ctx context.Context, rawPhone, text string) error {
	d.mu.Lock()
	d.phones = append(d.phones, rawPhone)
	d.texts = append(d.texts, text)
	reason, fail := d.failWith[rawPhone]
	d.mu.Unlock()

	if d.sent != nil {
		d.sent <- struct{}{}
	}
	if fail {
		return errors.New(reason)
	}
	return nil
}

func (d *scriptDispatcher) calls() ([]string, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.phones...), append([]string(nil), d.texts...)
}

func recipients(n ...contacts.Recipient) []contacts.Recipient { return n }

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	disp := &scriptDispatcher{failWith: map[string]string{"+912": "session timeout"}}
	r := NewRunner(disp, nil, logx.Nop(), Config{})

	out, err := r.Run(context.Background(), recipients(
		contacts.Recipient{Name: "A", Phone: "+911"},
		contacts.Recipient{Name: "B", Phone: "+912"},
		contacts.Recipient{Name: "C", Phone: "+913"},
	), "hello", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.Success != 2 || out.Failed != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", out.Success, out.Failed)
	}
	phones, _ := disp.calls()
	if !reflect.DeepEqual(phones, []string{"+911", "+912", "+913"}) {
		t.Fatalf("dispatch order = %v; the failure must not stop the run", phones)
	}
	if len(out.Details) != 3 {
		t.Fatalf("details = %d, want 3", len(out.Details))
	}
	if out.Details[1].OK || out.Details[1].Reason != "session timeout" {
		t.Fatalf("failed detail = %+v", out.Details[1])
	}
	if !out.Details[0].OK || !out.Details[2].OK {
		t.Fatalf("details = %+v", out.Details)
	}
}

func TestRunPersonalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		personalize bool
		recipient   contacts.Recipient
		template    string
		want        string
	}{
		{"substitutes name", true, contacts.Recipient{Name: "Alice", Phone: "+911"}, "Hi {name}!", "Hi Alice!"},
		{"empty name falls back", true, contacts.Recipient{Name: "  ", Phone: "+911"}, "Hi {name}!", "Hi Friend!"},
		{"verbatim when off", false, contacts.Recipient{Name: "Alice", Phone: "+911"}, "Hi {name}!", "Hi {name}!"},
		{"no token is identical", true, contacts.Recipient{Name: "Alice", Phone: "+911"}, "Plain text", "Plain text"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			disp := &scriptDispatcher{}
			r := NewRunner(disp, nil, logx.Nop(), Config{})
			if _, err := r.Run(context.Background(), recipients(tt.recipient), tt.template, tt.personalize); err != nil {
				t.Fatalf("Run: %v", err)
			}
			_, texts := disp.calls()
			if len(texts) != 1 || texts[0] != tt.want {
				t.Fatalf("sent %q, want %q", texts, tt.want)
			}
		})
	}
}

func TestRunPacesSends(t *testing.T) {
	t.Parallel()

	disp := &scriptDispatcher{}
	r := NewRunner(disp, nil, logx.Nop(), Config{InterMessageDelay: 150 * time.Millisecond})

	start := time.Now()
	out, err := r.Run(context.Background(), recipients(
		contacts.Recipient{Phone: "+911"},
		contacts.Recipient{Phone: "+912"},
		contacts.Recipient{Phone: "+913"},
	), "x", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	if out.Success != 3 {
		t.Fatalf("success = %d, want 3", out.Success)
	}
	// Two inter-send gaps, no trailing wait.
	if elapsed < 300*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least 300ms of pacing", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("elapsed = %v, pacing should not include a trailing wait", elapsed)
	}
}

func TestRunCancelReturnsPartialOutcome(t *testing.T) {
	t.Parallel()

	disp := &scriptDispatcher{sent: make(chan struct{}, 8)}
	r := NewRunner(disp, nil, logx.Nop(), Config{InterMessageDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	type res struct {
		out Outcome
		err error
	}
	done := make(chan res, 1)
	go func() {
		out, err := r.Run(ctx, recipients(
			contacts.Recipient{Name: "A", Phone: "+911"},
			contacts.Recipient{Name: "B", Phone: "+912"},
		), "x", false)
		done <- res{out, err}
	}()

	// First send is immediate; cancel while pacing toward the second.
	<-disp.sent
	cancel()

	select {
	case got := <-done:
		if !errors.Is(got.err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", got.err)
		}
		if got.out.Success != 1 || len(got.out.Details) != 1 {
			t.Fatalf("partial outcome = %+v, want the one completed send", got.out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunPublishesProgress(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	disp := &scriptDispatcher{failWith: map[string]string{"+912": "gone"}}
	r := NewRunner(disp, bus, logx.Nop(), Config{})

	if _, err := r.Run(context.Background(), recipients(
		contacts.Recipient{Name: "A", Phone: "+911"},
		contacts.Recipient{Name: "B", Phone: "+912"},
	), "x", false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var progress []ProgressEvent
	var finished *FinishedEvent
	for i := 0; i < 3; i++ {
		select {
		case e := <-events:
			switch data := e.Data.(type) {
			case ProgressEvent:
				progress = append(progress, data)
			case FinishedEvent:
				finished = &data
			}
		case <-time.After(time.Second):
			t.Fatal("missing bus event")
		}
	}

	if len(progress) != 2 {
		t.Fatalf("progress events = %d, want 2", len(progress))
	}
	if progress[0].Index != 1 || progress[0].Total != 2 || progress[0].Error != "" {
		t.Fatalf("first progress = %+v", progress[0])
	}
	if progress[1].Index != 2 || progress[1].Error != "gone" {
		t.Fatalf("second progress = %+v", progress[1])
	}
	if progress[0].RunID == "" || progress[0].RunID != progress[1].RunID {
		t.Fatalf("run IDs differ: %q vs %q", progress[0].RunID, progress[1].RunID)
	}
	if finished == nil || finished.Success != 1 || finished.Failed != 1 {
		t.Fatalf("finished = %+v", finished)
	}
}

func TestRunGroup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "contacts.csv")
	raw := "name,phone,group\n" +
		"Alice,+911,family\n" +
		"Bob,+912,work\n" +
		"Carol,+913,family\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	store, err := contacts.Open(contacts.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("contacts.Open: %v", err)
	}
	book, err := contacts.NewManager(context.Background(), store, logx.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	disp := &scriptDispatcher{}
	r := NewRunner(disp, nil, logx.Nop(), Config{})

	out, err := r.RunGroup(context.Background(), book, "family", "hi", false)
	if err != nil {
		t.Fatalf("RunGroup: %v", err)
	}
	if out.Success != 2 {
		t.Fatalf("success = %d, want 2", out.Success)
	}
	phones, _ := disp.calls()
	if !reflect.DeepEqual(phones, []string{"+911", "+913"}) {
		t.Fatalf("phones = %v", phones)
	}
}

func TestRunEmptyRecipientList(t *testing.T) {
	t.Parallel()

	disp := &scriptDispatcher{}
	r := NewRunner(disp, nil, logx.Nop(), Config{InterMessageDelay: time.Hour})

	out, err := r.Run(context.Background(), nil, "x", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Success != 0 || out.Failed != 0 || len(out.Details) != 0 {
		t.Fatalf("outcome = %+v, want empty", out)
	}
}
