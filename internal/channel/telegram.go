package channel

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"blastbot/internal/phone"
	logx "blastbot/pkg/logx"
)

const defaultSendWait = 15 * time.Second

// telegramHTTPTimeout backstops the Bot API round trip. The per-send Wait
// budget is enforced with a context on top of it, so this only has to catch
// connections that would otherwise hang forever.
const telegramHTTPTimeout = 60 * time.Second

// telegramChannel delivers through the Telegram Bot API, outbound only.
// No poller is attached and Start is never called on the bot.
type telegramChannel struct {
	cfg TelegramConfig
	log logx.Logger
	bot *tele.Bot
}

func newTelegram(cfg TelegramConfig, log logx.Logger) (Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: telegramHTTPTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &telegramChannel{
		cfg: cfg,
		log: log.With(logx.String("channel", "telegram")),
		bot: b,
	}, nil
}

func (t *telegramChannel) Send(ctx context.Context, to phone.Number, text string, at Target, opt *SendOptions) error {
	occ := NextOccurrence(time.Now(), at)
	if d := time.Until(occ); d > 0 {
		t.log.Debug("holding until target time",
			logx.String("to", to.String()),
			logx.String("target", at.String()),
			logx.Duration("wait", d),
		)
	}
	if err := waitUntil(ctx, occ); err != nil {
		return err
	}
	return t.deliver(ctx, to, text, opt)
}

func (t *telegramChannel) SendNow(ctx context.Context, to phone.Number, text string, opt *SendOptions) error {
	return t.deliver(ctx, to, text, opt)
}

func (t *telegramChannel) deliver(ctx context.Context, to phone.Number, text string, opt *SendOptions) error {
	chatID, ok := t.cfg.Recipients[string(to)]
	if !ok {
		return &DeliveryError{Reason: "no chat mapping for " + to.String()}
	}

	wait := defaultSendWait
	var settle time.Duration
	if opt != nil {
		if opt.Wait > 0 {
			wait = opt.Wait
		}
		settle = opt.Close
	}

	sctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	// telebot's Send has no context support. Run it on the side and race it
	// against the budget; the buffered channel lets a late finisher exit
	// cleanly, and the HTTP client timeout bounds how late that can be.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{})
		done <- err
	}()

	select {
	case <-sctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &DeliveryError{Reason: "send timed out", Err: sctx.Err()}
	case err := <-done:
		if err != nil {
			return &DeliveryError{Reason: err.Error(), Err: err}
		}
	}

	t.log.Debug("delivered", logx.String("to", to.String()), logx.Int64("chat_id", chatID))
	return sleepFor(ctx, settle)
}
