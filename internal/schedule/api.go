package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"blastbot/internal/channel"
	"blastbot/internal/eventbus"
	logx "blastbot/pkg/logx"
)

// AddDaily registers job to fire every day at "HH:MM" in the scheduler
// timezone. Registering an existing name replaces it.
func (s *Service) AddDaily(name, at string, timeout time.Duration, job Job) error {
	h, m, err := ParseClock(at)
	if err != nil {
		return err
	}
	return s.addNamed(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

// AddWeekly registers job to fire every week on day at "HH:MM".
func (s *Service) AddWeekly(name string, day time.Weekday, at string, timeout time.Duration, job Job) error {
	h, m, err := ParseClock(at)
	if err != nil {
		return err
	}
	return s.addNamed(name, fmt.Sprintf("%d %d * * %d", m, h, int(day)), timeout, job)
}

func (s *Service) addNamed(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}
	if job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert by name so hot-reloads and repeated registrations cannot
	// stack duplicate firings.
	s.removeCronLocked(name)
	s.removeOnce(name)

	s.defs = append(s.defs, jobDef{name: name, spec: spec, timeout: timeout, job: job})
	if s.c != nil {
		d := &s.defs[len(s.defs)-1]
		s.addCronLocked(d)
		s.log.Debug("job registered",
			logx.String("name", name), logx.String("spec", spec),
			logx.Time("next", s.c.Entry(d.entryID).Next))
	}
	return nil
}

// addCronLocked registers one definition with the running cron. The closure
// captures values, not the slice element, so later slice growth or
// compaction cannot change what fires.
func (s *Service) addCronLocked(d *jobDef) {
	name, timeout, job := d.name, d.timeout, d.job
	id, err := s.c.AddFunc(d.spec, func() { s.runJob(name, timeout, job) })
	if err != nil {
		// Specs are built by this package from validated input, so this is
		// a programming error worth a loud log rather than a silent drop.
		s.log.Error("cron registration failed",
			logx.String("name", d.name), logx.String("spec", d.spec), logx.Any("err", err))
		return
	}
	d.entryID = id
}

// AddOnce arms job to fire once at the wall-clock moment at. A past moment
// fires immediately. The entry disappears after firing or Remove; re-adding
// the same name replaces the pending shot.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}
	if at.IsZero() {
		return errors.New("fire time required")
	}
	if job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	s.removeCronLocked(name)
	s.mu.Unlock()

	runAt := at.In(s.location())

	s.tmu.Lock()
	defer s.tmu.Unlock()

	var ver uint64 = 1
	if prev, ok := s.once[name]; ok {
		if prev.timer != nil {
			_ = prev.timer.Stop()
		}
		ver = prev.ver + 1
	}
	od := &onceDef{at: runAt, timeout: timeout, job: job, ver: ver}
	s.once[name] = od
	od.timer = s.armOnce(name, od)

	s.log.Debug("one-shot armed", logx.String("name", name), logx.Time("at", runAt))
	return nil
}

// armOnce creates the fire timer for a one-shot. Caller holds s.tmu.
func (s *Service) armOnce(name string, od *onceDef) *time.Timer {
	ver := od.ver
	timeout := od.timeout
	job := od.job
	delay := time.Until(od.at)
	if delay < 0 {
		delay = 0
	}
	return time.AfterFunc(delay, func() {
		s.tmu.Lock()
		cur, ok := s.once[name]
		if !ok || cur.ver != ver {
			// Replaced or removed while the timer was pending.
			s.tmu.Unlock()
			return
		}
		delete(s.once, name)
		s.tmu.Unlock()

		s.runJob(name, timeout, job)
	})
}

// rearmOnceTimersLocked recreates timers for one-shots that survived a
// Stop. Caller holds s.mu.
func (s *Service) rearmOnceTimersLocked() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for name, od := range s.once {
		if od.timer != nil {
			_ = od.timer.Stop()
		}
		od.timer = s.armOnce(name, od)
	}
}

// RunAt blocks until the next occurrence of hour:minute in the scheduler
// timezone, then runs job inline and returns its error. The job is never
// started before the requested wall-clock time; cancellation during the
// wait returns ctx's error without running the job.
func (s *Service) RunAt(ctx context.Context, hour, minute int, job Job) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour %d", hour)
	}
	if minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute %d", minute)
	}
	if job == nil {
		return errors.New("job required")
	}

	now := time.Now().In(s.location())
	at := channel.NextOccurrence(now, channel.Target{Hour: hour, Minute: minute})
	if wait := time.Until(at); wait > 0 {
		s.log.Info("waiting for scheduled time",
			logx.Time("at", at), logx.Duration("wait", wait))
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		}
	}
	return job(ctx)
}

// Remove unregisters every job with the given name, recurring or one-shot.
// Reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	s.mu.Lock()
	removed := s.removeCronLocked(name)
	s.mu.Unlock()

	s.tmu.Lock()
	removed = s.removeOnceLocked(name) || removed
	s.tmu.Unlock()

	if removed {
		s.log.Debug("job removed", logx.String("name", name))
	}
	return removed
}

// removeCronLocked drops every recurring definition with the given name.
// Caller holds s.mu.
func (s *Service) removeCronLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// removeOnce is removeOnceLocked behind s.tmu, for callers that do not
// already hold it.
func (s *Service) removeOnce(name string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return s.removeOnceLocked(name)
}

func (s *Service) removeOnceLocked(name string) bool {
	od, ok := s.once[name]
	if !ok {
		return false
	}
	if od.timer != nil {
		_ = od.timer.Stop()
	}
	delete(s.once, name)
	return true
}

// Jobs lists every registration, recurring and one-shot, sorted by name.
func (s *Service) Jobs() []JobInfo {
	var out []JobInfo

	s.mu.Lock()
	for _, d := range s.defs {
		info := JobInfo{Name: d.name, Spec: d.spec}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	s.mu.Unlock()

	s.tmu.Lock()
	for name, od := range s.once {
		out = append(out, JobInfo{
			Name: name,
			Spec: "once " + od.at.Format("2006-01-02 15:04"),
			Next: od.at,
		})
	}
	s.tmu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// runJob executes one firing. Panics become errors, errors are logged and
// swallowed: a failed run never costs the job its registration.
func (s *Service) runJob(name string, timeout time.Duration, job Job) {
	ctx := s.baseCtx()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := runGuarded(ctx, job)
	elapsed := time.Since(start)

	ev := FireEvent{Name: name, Elapsed: elapsed}
	if err != nil {
		ev.Error = err.Error()
		s.log.Warn("scheduled job failed",
			logx.String("name", name), logx.Any("err", err), logx.Duration("took", elapsed))
	} else {
		s.log.Info("scheduled job finished",
			logx.String("name", name), logx.Duration("took", elapsed))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "schedule.fired", Data: ev})
	}
}

func runGuarded(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return job(ctx)
}
