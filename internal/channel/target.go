package channel

import (
	"context"
	"fmt"
	"time"
)

// Target is a wall-clock send time (24h). Delivery channels guarantee a
// message is not transmitted before the next occurrence of its target.
type Target struct {
	Hour   int
	Minute int
}

func (t Target) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// TargetAfter returns the target d from now. Going through time.Add means
// minute and hour carry naturally: 23:59 plus two minutes lands on 00:01
// of the next day instead of an out-of-range 24:01.
func TargetAfter(now time.Time, d time.Duration) Target {
	at := now.Add(d)
	return Target{Hour: at.Hour(), Minute: at.Minute()}
}

// NextOccurrence resolves t to the next wall-clock instant in now's
// location. A target inside the current minute resolves to now itself, so
// a trigger firing milliseconds past the minute does not jump a full day.
func NextOccurrence(now time.Time, t Target) time.Time {
	occ := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if !occ.After(now) {
		if now.Sub(occ) < time.Minute {
			return now
		}
		occ = occ.AddDate(0, 0, 1)
	}
	return occ
}

// waitUntil blocks until the given instant or ctx cancellation.
func waitUntil(ctx context.Context, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// sleepFor is a ctx-aware sleep used for post-send settle pauses.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
