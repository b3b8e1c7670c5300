// Package channel abstracts the message transport. A channel owns the
// "not before the target time" guarantee and reports transport failures as
// DeliveryError so callers can separate them from programming errors.
package channel

import (
	"context"
	"errors"
	"strings"
	"time"

	"blastbot/internal/phone"
	logx "blastbot/pkg/logx"
)

// SendOptions carries per-send timing budgets.
//
// Wait bounds the transport call itself (session readiness plus the API
// round trip). Close is the settle pause after a successful send, kept from
// the browser-session days where the tab needed a moment before closing.
type SendOptions struct {
	Wait  time.Duration
	Close time.Duration
}

// Channel is the delivery transport.
//
// Send waits (interruptibly) until the next occurrence of at, then delivers.
// SendNow delivers immediately. Both are synchronous: when they return, the
// delivery attempt is over. A nil opt uses driver defaults.
type Channel interface {
	Send(ctx context.Context, to phone.Number, text string, at Target, opt *SendOptions) error
	SendNow(ctx context.Context, to phone.Number, text string, opt *SendOptions) error
}

// DeliveryError is a transport-level send failure.
//
// Error() renders only the reason: that text ends up verbatim behind
// "FAILED: " in the delivery record, so it stays short and human-readable.
type DeliveryError struct {
	Reason string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "delivery failed"
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Config selects and configures the transport driver.
type Config struct {
	// Driver is "telegram" or "dryrun". Empty defaults to "dryrun".
	Driver   string
	Telegram TelegramConfig
}

// TelegramConfig configures the outbound-only Telegram driver.
type TelegramConfig struct {
	Token string
	// Recipients maps normalized phone numbers to chat IDs. Telegram cannot
	// address a chat by phone number, so the mapping is the channel's
	// address book.
	Recipients map[string]int64
}

// Open initializes the configured channel.
func Open(cfg Config, log logx.Logger) (Channel, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "dryrun", "dry-run":
		return NewDryRun(log), nil
	case "telegram":
		return newTelegram(cfg.Telegram, log)
	default:
		return nil, errors.New("unknown channel driver: " + driver)
	}
}
