// Package bulk fans one message template out to a list of recipients,
// paced so consecutive deliveries stay a configured distance apart.
package bulk

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"blastbot/internal/contacts"
	"blastbot/internal/eventbus"
	logx "blastbot/pkg/logx"
)

// fallbackName stands in for recipients without a name so personalized
// templates never render an empty greeting.
const fallbackName = "Friend"

// namePlaceholder is the template token replaced per recipient.
const namePlaceholder = "{name}"

// Dispatcher is the slice of the dispatch service a run needs.
type Dispatcher interface {
	DispatchAfterLookahead(ctx context.Context, rawPhone, text string) error
}

type Config struct {
	// InterMessageDelay is the minimum spacing between consecutive sends.
	InterMessageDelay time.Duration
}

// Runner executes bulk runs one recipient at a time. Failures are isolated:
// a recipient that cannot be delivered to is counted and the run moves on.
type Runner struct {
	cfgMu sync.RWMutex
	cfg   Config

	disp Dispatcher
	bus  eventbus.Bus
	log  logx.Logger
}

func NewRunner(disp Dispatcher, bus eventbus.Bus, log logx.Logger, cfg Config) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{disp: disp, bus: bus, log: log, cfg: cfg}
}

func (r *Runner) Apply(cfg Config) {
	r.cfgMu.Lock()
	r.cfg = cfg
	r.cfgMu.Unlock()
}

func (r *Runner) delay() time.Duration {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.cfg.InterMessageDelay
}

// Run sends the template to every recipient in order.
//
// Pacing: the first send starts immediately, each following send waits until
// at least InterMessageDelay has passed since the previous one started. The
// wait is interruptible; cancellation returns the partial Outcome together
// with ctx's error. There is no trailing wait after the last recipient.
func (r *Runner) Run(ctx context.Context, recipients []contacts.Recipient, template string, personalize bool) (Outcome, error) {
	runID := "run_" + uuid.NewString()
	total := len(recipients)
	start := time.Now()

	log := r.log.With(logx.String("run_id", runID))
	log.Info("bulk run started", logx.Int("recipients", total), logx.Bool("personalize", personalize))

	var lim *rate.Limiter
	if d := r.delay(); d > 0 {
		lim = rate.NewLimiter(rate.Every(d), 1)
	}

	out := Outcome{Details: make([]SendResult, 0, total)}
	for i, rec := range recipients {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				log.Warn("bulk run interrupted",
					logx.Int("sent", len(out.Details)), logx.Int("total", total))
				r.finish(runID, start, out)
				// Wait can also fail on a deadline pre-check before ctx
				// is formally done; surface ctx's error when it has one.
				if cerr := ctx.Err(); cerr != nil {
					err = cerr
				}
				return out, err
			}
		} else if err := ctx.Err(); err != nil {
			r.finish(runID, start, out)
			return out, err
		}

		name := displayName(rec.Name)
		text := template
		if personalize {
			text = strings.ReplaceAll(text, namePlaceholder, name)
		}

		err := r.disp.DispatchAfterLookahead(ctx, rec.Phone, text)
		res := SendResult{Name: name, Phone: rec.Phone, OK: err == nil}
		if err != nil {
			res.Reason = err.Error()
			out.Failed++
			log.Warn("bulk send failed",
				logx.Int("index", i+1), logx.Int("total", total),
				logx.String("phone", rec.Phone), logx.Any("err", err))
		} else {
			out.Success++
		}
		out.Details = append(out.Details, res)
		r.progress(runID, i+1, total, res)
	}

	log.Info("bulk run finished",
		logx.Int("success", out.Success), logx.Int("failed", out.Failed),
		logx.Duration("elapsed", time.Since(start)))
	r.finish(runID, start, out)
	return out, nil
}

// RunGroup sends the template to every recipient of one group, duplicates
// included (each row is one send).
func (r *Runner) RunGroup(ctx context.Context, book *contacts.Manager, group string, template string, personalize bool) (Outcome, error) {
	return r.Run(ctx, book.ByGroup(group), template, personalize)
}

func (r *Runner) progress(runID string, index, total int, res SendResult) {
	if r.bus == nil {
		return
	}
	ev := ProgressEvent{RunID: runID, Index: index, Total: total, Name: res.Name, Phone: res.Phone}
	if !res.OK {
		ev.Error = res.Reason
	}
	r.bus.Publish(eventbus.Event{Type: "bulk.progress", Data: ev})
}

func (r *Runner) finish(runID string, start time.Time, out Outcome) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: "bulk.finished", Data: FinishedEvent{
		RunID: runID, Success: out.Success, Failed: out.Failed, Elapsed: time.Since(start),
	}})
}

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallbackName
	}
	return name
}
