package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"blastbot/internal/eventbus"
	logx "blastbot/pkg/logx"
)

// Job is a scheduled unit of work. Its error is logged, never fatal: a
// failing job stays registered and fires again at the next occurrence.
type Job func(ctx context.Context) error

type Config struct {
	Enabled  bool
	Timezone string // IANA name, e.g. "Asia/Kolkata"; empty means Local
}

// jobDef is one recurring registration. The closure and spec are captured
// at Add time; entryID is only set while cron is running.
type jobDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

// onceDef is one pending one-shot. The version guards against a stale
// timer callback firing after the name was replaced or removed.
type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     Job
	ver     uint64
	timer   *time.Timer
}

// JobInfo describes a registered job for display.
type JobInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

// FireEvent is the bus payload for "schedule.fired".
type FireEvent struct {
	Name    string        `json:"name"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
}

// Service triggers jobs on wall-clock schedules. It is trigger-only:
// delivery waits, retries, and serialization live behind the Job closures.
type Service struct {
	mu  sync.Mutex
	log logx.Logger
	bus eventbus.Bus
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	runCtx context.Context // base context for job runs, set by Start

	tmu  sync.Mutex
	once map[string]*onceDef
}
