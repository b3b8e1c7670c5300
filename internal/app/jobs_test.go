package app

import (
	"strings"
	"testing"
	"time"

	"blastbot/internal/config"
	"blastbot/internal/eventbus"
	"blastbot/internal/schedule"
	logx "blastbot/pkg/logx"
)

func TestValidateJobs(t *testing.T) {
	t.Parallel()

	base := func(j config.JobConfig) *config.Config {
		return &config.Config{Schedule: config.ScheduleConfig{Jobs: []config.JobConfig{j}}}
	}

	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr string
	}{
		{
			name: "daily phone job",
			cfg:  base(config.JobConfig{Name: "morning", Kind: "daily", At: "08:30", Phone: "+911", Message: "hi"}),
		},
		{
			name: "weekly group job",
			cfg:  base(config.JobConfig{Name: "report", Kind: "weekly", Weekday: "fri", At: "17:00", Group: "work", Message: "report time"}),
		},
		{
			name: "once job",
			cfg:  base(config.JobConfig{Name: "launch", Kind: "once", Date: "2027-01-15", At: "10:00", Group: "vip", Message: "we are live"}),
		},
		{
			name:    "missing name",
			cfg:     base(config.JobConfig{Kind: "daily", Phone: "+911", Message: "hi"}),
			wantErr: "name is required",
		},
		{
			name: "duplicate name",
			cfg: &config.Config{Schedule: config.ScheduleConfig{Jobs: []config.JobConfig{
				{Name: "x", Kind: "daily", Phone: "+911", Message: "a"},
				{Name: "x", Kind: "daily", Phone: "+922", Message: "b"},
			}}},
			wantErr: "duplicate name",
		},
		{
			name:    "bad clock",
			cfg:     base(config.JobConfig{Name: "x", Kind: "daily", At: "25:00", Phone: "+911", Message: "hi"}),
			wantErr: "invalid hour",
		},
		{
			name:    "weekly without weekday",
			cfg:     base(config.JobConfig{Name: "x", Kind: "weekly", Phone: "+911", Message: "hi"}),
			wantErr: "weekday",
		},
		{
			name:    "once without date",
			cfg:     base(config.JobConfig{Name: "x", Kind: "once", Phone: "+911", Message: "hi"}),
			wantErr: "date is required",
		},
		{
			name:    "once with bad date",
			cfg:     base(config.JobConfig{Name: "x", Kind: "once", Date: "15.01.2027", Phone: "+911", Message: "hi"}),
			wantErr: "invalid date",
		},
		{
			name:    "unknown kind",
			cfg:     base(config.JobConfig{Name: "x", Kind: "hourly", Phone: "+911", Message: "hi"}),
			wantErr: "kind must be",
		},
		{
			name:    "phone and group together",
			cfg:     base(config.JobConfig{Name: "x", Kind: "daily", Phone: "+911", Group: "work", Message: "hi"}),
			wantErr: "exactly one of phone or group",
		},
		{
			name:    "neither phone nor group",
			cfg:     base(config.JobConfig{Name: "x", Kind: "daily", Message: "hi"}),
			wantErr: "exactly one of phone or group",
		},
		{
			name:    "missing message",
			cfg:     base(config.JobConfig{Name: "x", Kind: "daily", Phone: "+911"}),
			wantErr: "message is required",
		},
		{
			name:    "bad timeout",
			cfg:     base(config.JobConfig{Name: "x", Kind: "daily", Phone: "+911", Message: "hi", Timeout: "later"}),
			wantErr: "timeout",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateJobs(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validateJobs: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("validateJobs = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestOnceTime(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("IST", 5*3600+1800)
	got, err := onceTime("2027-01-15", "09:30", loc)
	if err != nil {
		t.Fatalf("onceTime: %v", err)
	}
	want := time.Date(2027, 1, 15, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("onceTime = %v, want %v", got, want)
	}

	if _, err := onceTime("soon", "09:30", loc); err == nil {
		t.Fatal("expected error for malformed date")
	}
	if _, err := onceTime("2027-01-15", "9am", loc); err == nil {
		t.Fatal("expected error for malformed clock")
	}
}

func newJobTestApp() *App {
	return &App{
		log:     logx.Nop(),
		sched:   schedule.New(schedule.Config{}, logx.Nop(), eventbus.New()),
		cfgJobs: map[string]struct{}{},
	}
}

func TestApplyJobsUpsertAndPrune(t *testing.T) {
	t.Parallel()

	a := newJobTestApp()
	cfg := &config.Config{Schedule: config.ScheduleConfig{
		Jobs: []config.JobConfig{
			{Name: "morning", Kind: "daily", At: "08:00", Phone: "+911", Message: "hi"},
			{Name: "report", Kind: "weekly", Weekday: "friday", At: "17:00", Group: "work", Message: "report"},
		},
	}}
	if err := a.applyJobs(cfg); err != nil {
		t.Fatalf("applyJobs: %v", err)
	}
	jobs := a.sched.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].Name != "morning" || jobs[0].Spec != "0 8 * * *" {
		t.Errorf("jobs[0] = %+v, want morning @ 0 8 * * *", jobs[0])
	}
	if jobs[1].Name != "report" || jobs[1].Spec != "0 17 * * 5" {
		t.Errorf("jobs[1] = %+v, want report @ 0 17 * * 5", jobs[1])
	}

	// Dropping a job from the config deregisters it on the next apply.
	cfg.Schedule.Jobs = cfg.Schedule.Jobs[:1]
	if err := a.applyJobs(cfg); err != nil {
		t.Fatalf("applyJobs: %v", err)
	}
	jobs = a.sched.Jobs()
	if len(jobs) != 1 || jobs[0].Name != "morning" {
		t.Fatalf("jobs after prune = %+v, want only morning", jobs)
	}
}

func TestApplyJobsDefaultClock(t *testing.T) {
	t.Parallel()

	a := newJobTestApp()
	cfg := &config.Config{
		DefaultScheduleHour:   intp(7),
		DefaultScheduleMinute: 15,
		Schedule: config.ScheduleConfig{
			Jobs: []config.JobConfig{{Name: "quiet", Kind: "daily", Phone: "+911", Message: "hi"}},
		},
	}
	if err := a.applyJobs(cfg); err != nil {
		t.Fatalf("applyJobs: %v", err)
	}
	jobs := a.sched.Jobs()
	if len(jobs) != 1 || jobs[0].Spec != "15 7 * * *" {
		t.Fatalf("jobs = %+v, want one job @ 15 7 * * *", jobs)
	}
}

func TestApplyJobsSkipsStaleOnce(t *testing.T) {
	t.Parallel()

	a := newJobTestApp()
	cfg := &config.Config{Schedule: config.ScheduleConfig{
		Jobs: []config.JobConfig{{Name: "old", Kind: "once", Date: "2001-01-01", At: "09:00", Phone: "+911", Message: "hi"}},
	}}
	if err := a.applyJobs(cfg); err != nil {
		t.Fatalf("applyJobs: %v", err)
	}
	if jobs := a.sched.Jobs(); len(jobs) != 0 {
		t.Fatalf("stale once job was scheduled: %+v", jobs)
	}
}

func TestApplyJobsReportsBadJob(t *testing.T) {
	t.Parallel()

	a := newJobTestApp()
	cfg := &config.Config{Schedule: config.ScheduleConfig{
		Jobs: []config.JobConfig{{Name: "x", Kind: "weekly", Weekday: "noday", At: "09:00", Phone: "+911", Message: "hi"}},
	}}
	if err := a.applyJobs(cfg); err == nil {
		t.Fatal("expected error for unparseable weekday")
	}
	if jobs := a.sched.Jobs(); len(jobs) != 0 {
		t.Fatalf("bad job was scheduled: %+v", jobs)
	}
}
