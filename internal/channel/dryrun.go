package channel

import (
	"context"
	"time"

	"blastbot/internal/phone"
	logx "blastbot/pkg/logx"
)

// dryRun logs every would-be delivery instead of transmitting it. It still
// honors the target wait and the settle pause so timing behavior matches a
// real driver. Default driver: a misconfigured box must never blast real
// messages by accident.
type dryRun struct {
	log logx.Logger
}

func NewDryRun(log logx.Logger) Channel {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &dryRun{log: log.With(logx.String("channel", "dryrun"))}
}

func (d *dryRun) Send(ctx context.Context, to phone.Number, text string, at Target, opt *SendOptions) error {
	occ := NextOccurrence(time.Now(), at)
	if err := waitUntil(ctx, occ); err != nil {
		return err
	}
	return d.deliver(ctx, to, text, opt)
}

func (d *dryRun) SendNow(ctx context.Context, to phone.Number, text string, opt *SendOptions) error {
	return d.deliver(ctx, to, text, opt)
}

func (d *dryRun) deliver(ctx context.Context, to phone.Number, text string, opt *SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.log.Info("dry-run delivery",
		logx.String("to", to.String()),
		logx.Int("chars", len(text)),
	)
	if opt != nil {
		return sleepFor(ctx, opt.Close)
	}
	return nil
}
