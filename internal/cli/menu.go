// Package cli is the interactive menu: the single-user console for sends,
// contact upkeep, and schedules. It validates input at the prompt and
// re-asks, so only well-formed values ever reach the services.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"blastbot/internal/bulk"
	"blastbot/internal/contacts"
	"blastbot/internal/eventbus"
	"blastbot/internal/schedule"
	logx "blastbot/pkg/logx"
)

// Dispatcher is the slice of the dispatch service the menu uses.
type Dispatcher interface {
	DispatchAfterLookahead(ctx context.Context, rawPhone, text string) error
	DispatchNow(ctx context.Context, rawPhone, text string) error
}

// BulkRunner is the slice of the bulk runner the menu uses.
type BulkRunner interface {
	Run(ctx context.Context, recipients []contacts.Recipient, template string, personalize bool) (bulk.Outcome, error)
}

// Defaults prefills prompts that accept an empty answer.
type Defaults struct {
	ScheduleHour   int
	ScheduleMinute int
}

type Deps struct {
	Dispatcher Dispatcher
	Bulk       BulkRunner
	Book       *contacts.Manager
	Scheduler  *schedule.Service
	Bus        eventbus.Bus
	Log        logx.Logger
	Defaults   Defaults
}

type Menu struct {
	deps     Deps
	out      io.Writer
	lines    chan string
	eof      chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewMenu(deps Deps, in io.Reader, out io.Writer) *Menu {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	m := &Menu{
		deps:  deps,
		out:   out,
		lines: make(chan string),
		eof:   make(chan struct{}),
		stop:  make(chan struct{}),
	}
	go m.readLoop(in)
	return m
}

// readLoop feeds stdin lines into the prompt channel. Input arrives from a
// goroutine so a blocked Read cannot hold up cancellation.
func (m *Menu) readLoop(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case m.lines <- sc.Text():
		case <-m.stop:
			return
		}
	}
	close(m.eof)
}

var errInputClosed = errors.New("input closed")

func (m *Menu) readLine(ctx context.Context) (string, error) {
	select {
	case line := <-m.lines:
		return strings.TrimSpace(line), nil
	case <-m.eof:
		return "", errInputClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Menu) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}

// Run shows the menu until exit, EOF, or cancellation.
func (m *Menu) Run(ctx context.Context) error {
	defer m.stopOnce.Do(func() { close(m.stop) })

	m.printf("blastbot: %d contacts loaded\n", m.deps.Book.Count())
	for {
		m.printBanner()
		choice, err := m.readLine(ctx)
		if err != nil {
			if errors.Is(err, errInputClosed) {
				return nil
			}
			return err
		}

		var handlerErr error
		switch choice {
		case "1":
			handlerErr = m.sendSingle(ctx)
		case "2":
			handlerErr = m.sendInstant(ctx)
		case "3":
			handlerErr = m.bulkAll(ctx)
		case "4":
			handlerErr = m.bulkGroup(ctx)
		case "5":
			m.listContacts()
		case "6":
			handlerErr = m.addContact(ctx)
		case "7":
			handlerErr = m.removeContact(ctx)
		case "8":
			handlerErr = m.importContacts(ctx)
		case "9":
			handlerErr = m.exportContacts(ctx)
		case "10":
			handlerErr = m.scheduleOnce(ctx)
		case "11":
			handlerErr = m.scheduleRecurring(ctx, false)
		case "12":
			handlerErr = m.scheduleRecurring(ctx, true)
		case "13":
			m.listJobs()
		case "0", "q", "exit", "quit":
			m.printf("bye\n")
			return nil
		default:
			m.printf("unknown choice %q\n", choice)
			continue
		}

		if handlerErr != nil {
			if errors.Is(handlerErr, errInputClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.printf("error: %v\n", handlerErr)
		}
	}
}

func (m *Menu) printBanner() {
	m.printf("\n" +
		" 1) send message               8) import contacts from CSV\n" +
		" 2) send instant message       9) export contacts to CSV\n" +
		" 3) bulk send to all          10) schedule once (waits here)\n" +
		" 4) bulk send to group        11) schedule daily\n" +
		" 5) list contacts             12) schedule weekly\n" +
		" 6) add contact               13) list scheduled jobs\n" +
		" 7) remove contact             0) exit\n" +
		"> ")
}

// promptNonEmpty re-asks until the answer has content.
func (m *Menu) promptNonEmpty(ctx context.Context, label string) (string, error) {
	for {
		m.printf("%s: ", label)
		v, err := m.readLine(ctx)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
		m.printf("value required\n")
	}
}

// promptPhone re-asks until the answer looks like a phone number. The
// normalizer accepts anything, so this is the gate for obvious typos.
func (m *Menu) promptPhone(ctx context.Context, label string) (string, error) {
	for {
		v, err := m.promptNonEmpty(ctx, label)
		if err != nil {
			return "", err
		}
		if phoneLike(v) {
			return v, nil
		}
		m.printf("%q does not look like a phone number\n", v)
	}
}

func phoneLike(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits > 0
}

// promptDefault returns def when the answer is empty.
func (m *Menu) promptDefault(ctx context.Context, label, def string) (string, error) {
	m.printf("%s [%s]: ", label, def)
	v, err := m.readLine(ctx)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

func (m *Menu) promptYesNo(ctx context.Context, label string) (bool, error) {
	for {
		m.printf("%s [y/N]: ", label)
		v, err := m.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(v) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		m.printf("answer y or n\n")
	}
}

// promptClock re-asks until it gets a valid HH:MM; empty takes the default.
func (m *Menu) promptClock(ctx context.Context) (hour, minute int, err error) {
	def := fmt.Sprintf("%02d:%02d", m.deps.Defaults.ScheduleHour, m.deps.Defaults.ScheduleMinute)
	for {
		v, err := m.promptDefault(ctx, "time (HH:MM)", def)
		if err != nil {
			return 0, 0, err
		}
		h, mi, perr := schedule.ParseClock(v)
		if perr == nil {
			return h, mi, nil
		}
		m.printf("%v\n", perr)
	}
}

func (m *Menu) promptWeekday(ctx context.Context) (time.Weekday, error) {
	for {
		v, err := m.promptNonEmpty(ctx, "weekday (e.g. monday)")
		if err != nil {
			return 0, err
		}
		d, perr := schedule.ParseWeekday(v)
		if perr == nil {
			return d, nil
		}
		m.printf("%v\n", perr)
	}
}

func (m *Menu) sendSingle(ctx context.Context) error {
	to, err := m.promptPhone(ctx, "phone")
	if err != nil {
		return err
	}
	text, err := m.promptNonEmpty(ctx, "message")
	if err != nil {
		return err
	}
	m.printf("dispatching shortly; this waits for the send to finish...\n")
	if err := m.deps.Dispatcher.DispatchAfterLookahead(ctx, to, text); err != nil {
		m.printf("send failed: %v\n", err)
		return nil
	}
	m.printf("sent\n")
	return nil
}

func (m *Menu) sendInstant(ctx context.Context) error {
	to, err := m.promptPhone(ctx, "phone")
	if err != nil {
		return err
	}
	text, err := m.promptNonEmpty(ctx, "message")
	if err != nil {
		return err
	}
	if err := m.deps.Dispatcher.DispatchNow(ctx, to, text); err != nil {
		m.printf("send failed: %v\n", err)
		return nil
	}
	m.printf("sent\n")
	return nil
}

func (m *Menu) bulkAll(ctx context.Context) error {
	return m.bulkRun(ctx, m.deps.Book.All(), "all contacts")
}

func (m *Menu) bulkGroup(ctx context.Context) error {
	group, err := m.promptDefault(ctx, "group", string(contacts.DefaultGroup))
	if err != nil {
		return err
	}
	rows := m.deps.Book.ByGroup(group)
	return m.bulkRun(ctx, rows, "group "+group)
}

func (m *Menu) bulkRun(ctx context.Context, rows []contacts.Recipient, what string) error {
	if len(rows) == 0 {
		m.printf("no recipients (%s)\n", what)
		return nil
	}
	template, err := m.promptNonEmpty(ctx, "message template")
	if err != nil {
		return err
	}
	personalize, err := m.promptYesNo(ctx, "personalize {name}")
	if err != nil {
		return err
	}
	ok, err := m.promptYesNo(ctx, fmt.Sprintf("send to %d recipients (%s)", len(rows), what))
	if err != nil {
		return err
	}
	if !ok {
		m.printf("aborted\n")
		return nil
	}

	stopProgress := m.streamProgress()
	out, runErr := m.deps.Bulk.Run(ctx, rows, template, personalize)
	stopProgress()

	m.printf("done: %d sent, %d failed\n", out.Success, out.Failed)
	for _, d := range out.Details {
		if !d.OK {
			m.printf("  %s (%s): %s\n", d.Name, d.Phone, d.Reason)
		}
	}
	if runErr != nil && ctx.Err() == nil {
		m.printf("run ended early: %v\n", runErr)
	}
	return nil
}

// streamProgress prints [i/total] lines from bus events while a bulk run is
// in flight. The returned stop function drains buffered events and waits
// for the printer to exit.
func (m *Menu) streamProgress() func() {
	if m.deps.Bus == nil {
		return func() {}
	}
	events, unsub := m.deps.Bus.Subscribe(64)
	runDone := make(chan struct{})
	printerDone := make(chan struct{})

	render := func(e eventbus.Event) bool {
		switch d := e.Data.(type) {
		case bulk.ProgressEvent:
			if d.Error != "" {
				m.printf("  [%d/%d] %s (%s) failed: %s\n", d.Index, d.Total, d.Name, d.Phone, d.Error)
			} else {
				m.printf("  [%d/%d] %s (%s) ok\n", d.Index, d.Total, d.Name, d.Phone)
			}
		case bulk.FinishedEvent:
			return false
		}
		return true
	}

	go func() {
		defer close(printerDone)
		for {
			select {
			case e, ok := <-events:
				if !ok || !render(e) {
					return
				}
			case <-runDone:
				for {
					select {
					case e, ok := <-events:
						if !ok || !render(e) {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	return func() {
		close(runDone)
		<-printerDone
		unsub()
	}
}

func (m *Menu) listContacts() {
	rows := m.deps.Book.All()
	if len(rows) == 0 {
		m.printf("no contacts\n")
		return
	}
	m.printf("%-20s %-16s %s\n", "NAME", "PHONE", "GROUP")
	for _, c := range rows {
		m.printf("%-20s %-16s %s\n", c.Name, c.Phone, c.Group)
	}
	m.printf("%d contacts\n", len(rows))
}

func (m *Menu) addContact(ctx context.Context) error {
	name, err := m.promptNonEmpty(ctx, "name")
	if err != nil {
		return err
	}
	phoneNo, err := m.promptPhone(ctx, "phone")
	if err != nil {
		return err
	}
	group, err := m.promptDefault(ctx, "group", string(contacts.DefaultGroup))
	if err != nil {
		return err
	}
	if err := m.deps.Book.Add(ctx, contacts.Recipient{Name: name, Phone: phoneNo, Group: contacts.Group(group)}); err != nil {
		return err
	}
	m.printf("added %s\n", name)
	return nil
}

func (m *Menu) removeContact(ctx context.Context) error {
	phoneNo, err := m.promptPhone(ctx, "phone to remove")
	if err != nil {
		return err
	}
	err = m.deps.Book.Remove(ctx, phoneNo)
	if errors.Is(err, contacts.ErrNotFound) {
		m.printf("no contact with phone %s\n", phoneNo)
		return nil
	}
	if err != nil {
		return err
	}
	m.printf("removed %s\n", phoneNo)
	return nil
}

func (m *Menu) importContacts(ctx context.Context) error {
	path, err := m.promptNonEmpty(ctx, "CSV path")
	if err != nil {
		return err
	}
	n, err := m.deps.Book.ImportCSV(ctx, path)
	if err != nil {
		return err
	}
	m.printf("imported %d rows; book now has %d contacts\n", n, m.deps.Book.Count())
	return nil
}

func (m *Menu) exportContacts(ctx context.Context) error {
	path, err := m.promptNonEmpty(ctx, "export path")
	if err != nil {
		return err
	}
	if err := m.deps.Book.ExportCSV(ctx, path); err != nil {
		return err
	}
	m.printf("exported %d contacts to %s\n", m.deps.Book.Count(), path)
	return nil
}

func (m *Menu) scheduleOnce(ctx context.Context) error {
	hour, minute, err := m.promptClock(ctx)
	if err != nil {
		return err
	}
	to, err := m.promptPhone(ctx, "phone")
	if err != nil {
		return err
	}
	text, err := m.promptNonEmpty(ctx, "message")
	if err != nil {
		return err
	}

	m.printf("waiting until %02d:%02d; Ctrl-C cancels\n", hour, minute)
	err = m.deps.Scheduler.RunAt(ctx, hour, minute, func(jctx context.Context) error {
		return m.deps.Dispatcher.DispatchAfterLookahead(jctx, to, text)
	})
	switch {
	case err == nil:
		m.printf("sent\n")
	case errors.Is(err, context.Canceled):
		m.printf("canceled\n")
	default:
		m.printf("send failed: %v\n", err)
	}
	return nil
}

func (m *Menu) scheduleRecurring(ctx context.Context, weekly bool) error {
	var day time.Weekday
	if weekly {
		var err error
		if day, err = m.promptWeekday(ctx); err != nil {
			return err
		}
	}
	hour, minute, err := m.promptClock(ctx)
	if err != nil {
		return err
	}
	to, err := m.promptPhone(ctx, "phone")
	if err != nil {
		return err
	}
	text, err := m.promptNonEmpty(ctx, "message")
	if err != nil {
		return err
	}

	at := fmt.Sprintf("%02d:%02d", hour, minute)
	job := func(jctx context.Context) error {
		return m.deps.Dispatcher.DispatchAfterLookahead(jctx, to, text)
	}

	var name string
	if weekly {
		name = fmt.Sprintf("weekly-%s-%s", strings.ToLower(day.String()), at)
		err = m.deps.Scheduler.AddWeekly(name, day, at, 0, job)
	} else {
		name = "daily-" + at
		err = m.deps.Scheduler.AddDaily(name, at, 0, job)
	}
	if err != nil {
		return err
	}

	m.deps.Scheduler.Start(ctx)
	m.printf("job %q registered; scheduler running, Ctrl-C stops\n", name)
	<-ctx.Done()
	return ctx.Err()
}

func (m *Menu) listJobs() {
	jobs := m.deps.Scheduler.Jobs()
	if len(jobs) == 0 {
		m.printf("no scheduled jobs\n")
		return
	}
	m.printf("%-28s %-22s %s\n", "NAME", "SPEC", "NEXT")
	for _, j := range jobs {
		next := "-"
		if !j.Next.IsZero() {
			next = j.Next.Format("2006-01-02 15:04")
		}
		m.printf("%-28s %-22s %s\n", j.Name, j.Spec, next)
	}
}
