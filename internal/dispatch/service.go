// Package dispatch is the single-message orchestration core: normalize the
// number, push the message through the channel with bounded retry, and write
// exactly one delivery-record entry for the final outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"blastbot/internal/audit"
	"blastbot/internal/channel"
	"blastbot/internal/eventbus"
	"blastbot/internal/phone"
	logx "blastbot/pkg/logx"
)

// Config is the dispatch tuning. All fields hot-reload via Apply.
type Config struct {
	// DefaultCountryCode is prepended to numbers without a leading "+".
	DefaultCountryCode string
	// WaitTime bounds each transport call (session + API round trip).
	WaitTime time.Duration
	// CloseTime is the post-send settle pause.
	CloseTime time.Duration
	// RetryMax is how many additional attempts follow a failed first try.
	RetryMax int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// Lookahead is the scheduling window for "send shortly from now".
	Lookahead time.Duration
}

// Service serializes all deliveries through one channel session.
type Service struct {
	// sendMu makes deliveries strictly sequential. The underlying session
	// cannot multiplex, so concurrent callers queue here.
	sendMu sync.Mutex

	cfgMu sync.RWMutex
	cfg   Config

	ch  channel.Channel
	rec audit.Log
	bus eventbus.Bus
	log logx.Logger
}

func New(ch channel.Channel, rec audit.Log, bus eventbus.Bus, log logx.Logger, cfg Config) *Service {
	if rec == nil {
		rec = audit.NewNop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{ch: ch, rec: rec, bus: bus, log: log, cfg: cfg}
}

// Apply swaps the tuning. In-flight sends keep the snapshot they started with.
func (s *Service) Apply(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Service) snapshot() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Dispatch delivers text to rawPhone at the next occurrence of at.
//
// The call is synchronous and serialized with every other send. Whatever
// happens (success, exhausted retries, panic in the channel, cancellation),
// exactly one delivery-record entry is written for the final outcome.
func (s *Service) Dispatch(ctx context.Context, rawPhone, text string, at channel.Target) error {
	cfg := s.snapshot()
	to := phone.Normalize(rawPhone, cfg.DefaultCountryCode)

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	err := s.attemptLoop(ctx, cfg, func(opt *channel.SendOptions) error {
		return s.ch.Send(ctx, to, text, at, opt)
	})
	s.record(to, text, err)
	return err
}

// DispatchAfterLookahead is Dispatch with a target a short, configured
// window from now. This is the "schedule for now plus two minutes"
// primitive the bulk and cron paths are built on.
func (s *Service) DispatchAfterLookahead(ctx context.Context, rawPhone, text string) error {
	cfg := s.snapshot()
	at := channel.TargetAfter(time.Now(), cfg.Lookahead)
	return s.Dispatch(ctx, rawPhone, text, at)
}

// DispatchNow delivers immediately, skipping the target wait. The retry
// and record contract is the same as Dispatch.
func (s *Service) DispatchNow(ctx context.Context, rawPhone, text string) error {
	cfg := s.snapshot()
	to := phone.Normalize(rawPhone, cfg.DefaultCountryCode)

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	err := s.attemptLoop(ctx, cfg, func(opt *channel.SendOptions) error {
		return s.ch.SendNow(ctx, to, text, opt)
	})
	s.record(to, text, err)
	return err
}

// attemptLoop runs send up to 1+RetryMax times with a fixed, interruptible
// pause between attempts. It returns nil on the first success, else the
// last error seen.
func (s *Service) attemptLoop(ctx context.Context, cfg Config, send func(*channel.SendOptions) error) error {
	opt := &channel.SendOptions{Wait: cfg.WaitTime, Close: cfg.CloseTime}

	maxAttempts := 1
	if cfg.RetryMax > 0 {
		maxAttempts = 1 + cfg.RetryMax
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		err := s.sendOnce(send, opt)
		if err == nil {
			if attempt > 1 {
				s.log.Info("delivery recovered", logx.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err
		s.log.Debug("delivery attempt failed",
			logx.Any("err", err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		if cfg.RetryDelay <= 0 {
			continue
		}
		t := time.NewTimer(cfg.RetryDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return lastErr
		}
	}
	return lastErr
}

// sendOnce guards a single channel call against panics. A panicking driver
// must still yield an error, otherwise the delivery record would miss an
// outcome.
func (s *Service) sendOnce(send func(*channel.SendOptions) error, opt *channel.SendOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("channel panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("channel panic: %v", r)
		}
	}()
	return send(opt)
}

// record writes the one delivery-record entry for this dispatch and mirrors
// the outcome onto the event bus.
func (s *Service) record(to phone.Number, text string, sendErr error) {
	status := audit.StatusSuccess
	if sendErr != nil {
		status = audit.FailureStatus(failureReason(sendErr))
	}
	entry := audit.Entry{Time: time.Now(), Phone: to, Status: status, Message: text}
	if err := s.rec.Append(entry); err != nil {
		// The send outcome stands; a broken record file is its own problem.
		s.log.Error("delivery record append failed", logx.Any("err", err))
	}

	if s.bus == nil {
		return
	}
	ev := SendEvent{Phone: string(to), At: entry.Time}
	if sendErr == nil {
		s.bus.Publish(eventbus.Event{Type: "dispatch.sent", Time: entry.Time, Data: ev})
		return
	}
	ev.Error = sendErr.Error()
	s.bus.Publish(eventbus.Event{Type: "dispatch.failed", Time: entry.Time, Data: ev})
}

// failureReason extracts the short human reason that lands after "FAILED: ".
func failureReason(err error) string {
	var de *channel.DeliveryError
	if errors.As(err, &de) {
		return de.Error()
	}
	return err.Error()
}
