package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blastbot/internal/config"
	"blastbot/internal/schedule"
	logx "blastbot/pkg/logx"
)

// Config-declared jobs. "daily" and "weekly" become cron triggers, "once"
// arms a one-shot timer. Job bodies resolve their target send time when the
// trigger fires, never when the job is registered, so a job set up days in
// advance still dispatches relative to its own firing.

const jobDateLayout = "2006-01-02"

func validateJobs(cfg *config.Config) error {
	seen := make(map[string]struct{}, len(cfg.Schedule.Jobs))
	for i, jc := range cfg.Schedule.Jobs {
		name := strings.TrimSpace(jc.Name)
		if name == "" {
			return fmt.Errorf("schedule.jobs[%d]: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("schedule.jobs[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}

		if at := strings.TrimSpace(jc.At); at != "" {
			if _, _, err := schedule.ParseClock(at); err != nil {
				return fmt.Errorf("schedule.jobs[%d] %q: %w", i, name, err)
			}
		}

		switch strings.ToLower(strings.TrimSpace(jc.Kind)) {
		case "daily":
		case "weekly":
			if _, err := schedule.ParseWeekday(jc.Weekday); err != nil {
				return fmt.Errorf("schedule.jobs[%d] %q: %w", i, name, err)
			}
		case "once":
			d := strings.TrimSpace(jc.Date)
			if d == "" {
				return fmt.Errorf("schedule.jobs[%d] %q: date is required for once jobs", i, name)
			}
			if _, err := time.Parse(jobDateLayout, d); err != nil {
				return fmt.Errorf("schedule.jobs[%d] %q: invalid date %q, expected YYYY-MM-DD", i, name, d)
			}
		default:
			return fmt.Errorf("schedule.jobs[%d] %q: kind must be daily, weekly or once, got %q", i, name, jc.Kind)
		}

		phone := strings.TrimSpace(jc.Phone)
		group := strings.TrimSpace(jc.Group)
		if (phone == "") == (group == "") {
			return fmt.Errorf("schedule.jobs[%d] %q: exactly one of phone or group is required", i, name)
		}
		if strings.TrimSpace(jc.Message) == "" {
			return fmt.Errorf("schedule.jobs[%d] %q: message is required", i, name)
		}
		if _, err := config.ParseDurationField(fmt.Sprintf("schedule.jobs[%d].timeout", i), jc.Timeout); err != nil {
			return err
		}
	}
	return nil
}

// applyJobs reconciles config-declared jobs with the scheduler: upsert by
// name, deregister jobs removed from the config. Jobs added at runtime by
// other callers are left alone.
func (a *App) applyJobs(cfg *config.Config) error {
	if cfg == nil {
		return nil
	}
	hour, minute := scheduleDefaults(cfg)
	next := make(map[string]struct{}, len(cfg.Schedule.Jobs))

	var firstErr error
	for i := range cfg.Schedule.Jobs {
		jc := cfg.Schedule.Jobs[i]
		name := strings.TrimSpace(jc.Name)
		at := strings.TrimSpace(jc.At)
		if at == "" {
			at = fmt.Sprintf("%02d:%02d", hour, minute)
		}
		timeout, err := config.ParseDurationField(fmt.Sprintf("schedule.jobs[%d].timeout", i), jc.Timeout)
		if err == nil {
			err = a.registerJob(name, jc, at, timeout)
		}
		if err != nil {
			a.log.Warn("skipping schedule job", logx.String("job", name), logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		next[name] = struct{}{}
	}

	a.jobMu.Lock()
	for name := range a.cfgJobs {
		if _, keep := next[name]; !keep {
			a.sched.Remove(name)
		}
	}
	a.cfgJobs = next
	a.jobMu.Unlock()
	return firstErr
}

func (a *App) jobCount() int {
	a.jobMu.Lock()
	defer a.jobMu.Unlock()
	return len(a.cfgJobs)
}

func (a *App) registerJob(name string, jc config.JobConfig, at string, timeout time.Duration) error {
	body := a.jobBody(jc)
	switch strings.ToLower(strings.TrimSpace(jc.Kind)) {
	case "daily":
		return a.sched.AddDaily(name, at, timeout, body)
	case "weekly":
		day, err := schedule.ParseWeekday(jc.Weekday)
		if err != nil {
			return err
		}
		return a.sched.AddWeekly(name, day, at, timeout, body)
	case "once":
		when, err := onceTime(jc.Date, at, a.sched.Location())
		if err != nil {
			return err
		}
		if !when.After(time.Now()) {
			// Stale entries survive in configs; refusing them here keeps a
			// restart from re-firing last week's send.
			a.log.Info("one-shot job time already passed; not scheduling",
				logx.String("job", name), logx.Time("at", when))
			return nil
		}
		return a.sched.AddOnce(name, when, timeout, body)
	default:
		return fmt.Errorf("job %q: unknown kind %q", name, jc.Kind)
	}
}

func (a *App) jobBody(jc config.JobConfig) schedule.Job {
	message := jc.Message
	if phone := strings.TrimSpace(jc.Phone); phone != "" {
		return func(ctx context.Context) error {
			return a.disp.DispatchAfterLookahead(ctx, phone, message)
		}
	}
	group := strings.TrimSpace(jc.Group)
	personalize := jc.Personalize
	return func(ctx context.Context) error {
		out, err := a.bulk.RunGroup(ctx, a.book, group, message, personalize)
		if err != nil {
			return err
		}
		if out.Failed > 0 {
			return fmt.Errorf("bulk send finished with %d failures", out.Failed)
		}
		return nil
	}
}

func onceTime(date, at string, loc *time.Location) (time.Time, error) {
	h, m, err := schedule.ParseClock(at)
	if err != nil {
		return time.Time{}, err
	}
	day, err := time.ParseInLocation(jobDateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc), nil
}
