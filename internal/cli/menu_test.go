package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"blastbot/internal/bulk"
	"blastbot/internal/contacts"
	"blastbot/internal/schedule"
	logx "blastbot/pkg/logx"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	lookahead [][2]string
	instant   [][2]string
	err       error
}

func (f *fakeDispatcher) DispatchAfterLookahead(ctx context.Context, rawPhone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookahead = append(f.lookahead, [2]string{rawPhone, text})
	return f.err
}

func (f *fakeDispatcher) DispatchNow(ctx context.Context, rawPhone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instant = append(f.instant, [2]string{rawPhone, text})
	return f.err
}

type fakeBulk struct {
	mu          sync.Mutex
	calls       int
	recipients  int
	template    string
	personalize bool
	out         bulk.Outcome
}

func (f *fakeBulk) Run(ctx context.Context, rows []contacts.Recipient, template string, personalize bool) (bulk.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.recipients = len(rows)
	f.template = template
	f.personalize = personalize
	return f.out, nil
}

func newTestBook(t *testing.T, csvRows string) *contacts.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.csv")
	if csvRows != "" {
		if err := os.WriteFile(path, []byte("name,phone,group\n"+csvRows), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	store, err := contacts.Open(contacts.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("contacts.Open: %v", err)
	}
	book, err := contacts.NewManager(context.Background(), store, logx.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return book
}

func newTestDeps(t *testing.T, csvRows string) (Deps, *fakeDispatcher, *fakeBulk) {
	t.Helper()
	disp := &fakeDispatcher{}
	runner := &fakeBulk{}
	deps := Deps{
		Dispatcher: disp,
		Bulk:       runner,
		Book:       newTestBook(t, csvRows),
		Scheduler:  schedule.New(schedule.Config{}, logx.Nop(), nil),
		Log:        logx.Nop(),
		Defaults:   Defaults{ScheduleHour: 9, ScheduleMinute: 0},
	}
	return deps, disp, runner
}

func runMenu(t *testing.T, deps Deps, input string) string {
	t.Helper()
	var out bytes.Buffer
	m := NewMenu(deps, strings.NewReader(input), &out)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func TestMenuExit(t *testing.T) {
	t.Parallel()

	deps, _, _ := newTestDeps(t, "")
	out := runMenu(t, deps, "0\n")
	if !strings.Contains(out, "bye") {
		t.Fatalf("output missing goodbye:\n%s", out)
	}
}

func TestMenuEOFExitsCleanly(t *testing.T) {
	t.Parallel()

	deps, _, _ := newTestDeps(t, "")
	_ = runMenu(t, deps, "")
}

func TestMenuUnknownChoiceReprompts(t *testing.T) {
	t.Parallel()

	deps, _, _ := newTestDeps(t, "")
	out := runMenu(t, deps, "banana\n0\n")
	if !strings.Contains(out, `unknown choice "banana"`) {
		t.Fatalf("output missing rejection:\n%s", out)
	}
}

func TestMenuSendSingle(t *testing.T) {
	t.Parallel()

	deps, disp, _ := newTestDeps(t, "")
	out := runMenu(t, deps, "1\n9876543210\nhello there\n0\n")

	if len(disp.lookahead) != 1 {
		t.Fatalf("lookahead sends = %d, want 1", len(disp.lookahead))
	}
	if got := disp.lookahead[0]; got[0] != "9876543210" || got[1] != "hello there" {
		t.Fatalf("dispatched %v", got)
	}
	if !strings.Contains(out, "sent") {
		t.Fatalf("output missing confirmation:\n%s", out)
	}
}

func TestMenuSendFailureIsShownNotFatal(t *testing.T) {
	t.Parallel()

	deps, disp, _ := newTestDeps(t, "")
	disp.err = errors.New("session timeout")
	out := runMenu(t, deps, "2\n9876543210\nhi\n0\n")

	if len(disp.instant) != 1 {
		t.Fatalf("instant sends = %d, want 1", len(disp.instant))
	}
	if !strings.Contains(out, "send failed: session timeout") {
		t.Fatalf("output missing failure:\n%s", out)
	}
	if !strings.Contains(out, "bye") {
		t.Fatalf("menu should continue after a failed send:\n%s", out)
	}
}

func TestMenuRejectsMalformedPhone(t *testing.T) {
	t.Parallel()

	deps, disp, _ := newTestDeps(t, "")
	out := runMenu(t, deps, "1\nnot-a-phone!\n9876543210\nhi\n0\n")

	if len(disp.lookahead) != 1 || disp.lookahead[0][0] != "9876543210" {
		t.Fatalf("dispatched %v, want only the corrected phone", disp.lookahead)
	}
	if !strings.Contains(out, "does not look like a phone number") {
		t.Fatalf("output missing phone rejection:\n%s", out)
	}
}

func TestMenuContactLifecycle(t *testing.T) {
	t.Parallel()

	deps, _, _ := newTestDeps(t, "")
	script := strings.Join([]string{
		"6", "Alice", "+911234567890", "family", // add
		"5",                   // list
		"7", "+911234567890", // remove
		"7", "+911234567890", // remove again -> not found
		"0",
	}, "\n") + "\n"
	out := runMenu(t, deps, script)

	if !strings.Contains(out, "added Alice") {
		t.Fatalf("output missing add:\n%s", out)
	}
	if !strings.Contains(out, "Alice") || !strings.Contains(out, "family") {
		t.Fatalf("list output missing contact:\n%s", out)
	}
	if !strings.Contains(out, "removed +911234567890") {
		t.Fatalf("output missing removal:\n%s", out)
	}
	if !strings.Contains(out, "no contact with phone +911234567890") {
		t.Fatalf("output missing not-found:\n%s", out)
	}
	if deps.Book.Count() != 0 {
		t.Fatalf("book count = %d, want 0", deps.Book.Count())
	}
}

func TestMenuBulkAll(t *testing.T) {
	t.Parallel()

	deps, _, runner := newTestDeps(t, "Alice,+911,general\nBob,+912,general\n")
	runner.out = bulk.Outcome{Success: 1, Failed: 1, Details: []bulk.SendResult{
		{Name: "Alice", Phone: "+911", OK: true},
		{Name: "Bob", Phone: "+912", OK: false, Reason: "session timeout"},
	}}

	out := runMenu(t, deps, "3\nHi {name}\ny\ny\n0\n")

	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}
	if runner.recipients != 2 || runner.template != "Hi {name}" || !runner.personalize {
		t.Fatalf("runner got %d recipients, template %q, personalize %v",
			runner.recipients, runner.template, runner.personalize)
	}
	if !strings.Contains(out, "done: 1 sent, 1 failed") {
		t.Fatalf("output missing summary:\n%s", out)
	}
	if !strings.Contains(out, "Bob (+912): session timeout") {
		t.Fatalf("output missing failed detail:\n%s", out)
	}
}

func TestMenuBulkAborts(t *testing.T) {
	t.Parallel()

	deps, _, runner := newTestDeps(t, "Alice,+911,general\n")
	out := runMenu(t, deps, "3\nhello\nn\nn\n0\n")

	if runner.calls != 0 {
		t.Fatalf("runner calls = %d, want 0 after abort", runner.calls)
	}
	if !strings.Contains(out, "aborted") {
		t.Fatalf("output missing abort:\n%s", out)
	}
}

func TestMenuBulkGroupEmpty(t *testing.T) {
	t.Parallel()

	deps, _, runner := newTestDeps(t, "Alice,+911,family\n")
	out := runMenu(t, deps, "4\nwork\n0\n")

	if runner.calls != 0 {
		t.Fatalf("runner calls = %d, want 0 for empty group", runner.calls)
	}
	if !strings.Contains(out, "no recipients") {
		t.Fatalf("output missing empty-group notice:\n%s", out)
	}
}

func TestMenuImportExport(t *testing.T) {
	t.Parallel()

	deps, _, _ := newTestDeps(t, "")
	dir := t.TempDir()
	importPath := filepath.Join(dir, "in.csv")
	exportPath := filepath.Join(dir, "out.csv")
	raw := "name,phone,group\nAlice,+911,family\nBob,+912,work\n"
	if err := os.WriteFile(importPath, []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	script := "8\n" + importPath + "\n9\n" + exportPath + "\n0\n"
	out := runMenu(t, deps, script)

	if !strings.Contains(out, "imported 2 rows") {
		t.Fatalf("output missing import count:\n%s", out)
	}
	if !strings.Contains(out, "exported 2 contacts") {
		t.Fatalf("output missing export:\n%s", out)
	}
	if _, err := os.Stat(exportPath); err != nil {
		t.Fatalf("export file missing: %v", err)
	}
}

func TestMenuScheduleOnceSendsViaDispatcher(t *testing.T) {
	t.Parallel()

	// Near the minute boundary the "current minute" default could roll
	// over between prompting and RunAt; wait it out.
	if time.Now().Second() >= 55 {
		time.Sleep(time.Duration(61-time.Now().Second()) * time.Second)
	}

	deps, disp, _ := newTestDeps(t, "")
	now := time.Now()
	deps.Defaults = Defaults{ScheduleHour: now.Hour(), ScheduleMinute: now.Minute()}

	out := runMenu(t, deps, "10\n\n9876543210\ngood morning\n0\n")

	if len(disp.lookahead) != 1 {
		t.Fatalf("lookahead sends = %d, want 1", len(disp.lookahead))
	}
	if !strings.Contains(out, "sent") {
		t.Fatalf("output missing confirmation:\n%s", out)
	}
}

func TestMenuScheduleDailyRegistersAndBlocks(t *testing.T) {
	t.Parallel()

	deps, _, _ := newTestDeps(t, "")
	ctx, cancel := context.WithCancel(context.Background())

	var out bytes.Buffer
	m := NewMenu(deps, strings.NewReader("11\n\n9876543210\ngood morning\n"), &out)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(deps.Scheduler.Jobs()) == 0 {
		select {
		case <-deadline:
			t.Fatal("daily job never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("menu did not stop after cancellation")
	}

	jobs := deps.Scheduler.Jobs()
	if len(jobs) != 1 || jobs[0].Name != "daily-09:00" {
		t.Fatalf("jobs = %+v, want the daily registration", jobs)
	}
	deps.Scheduler.Stop(context.Background())
}

func TestMenuListJobsEmpty(t *testing.T) {
	t.Parallel()

	deps, _, _ := newTestDeps(t, "")
	out := runMenu(t, deps, "13\n0\n")
	if !strings.Contains(out, "no scheduled jobs") {
		t.Fatalf("output missing empty notice:\n%s", out)
	}
}
