package app

import (
	"fmt"
	"strings"
	"time"

	"blastbot/internal/bulk"
	"blastbot/internal/channel"
	"blastbot/internal/config"
	"blastbot/internal/contacts"
	"blastbot/internal/dispatch"
	"blastbot/internal/observability/pprof"
	"blastbot/internal/schedule"
	logx "blastbot/pkg/logx"
)

// Documented defaults. A minimal config file (or an empty one) behaves
// exactly like these values spelled out.
const (
	defaultCountryCode    = "+91"
	defaultWaitSeconds    = 15
	defaultCloseSeconds   = 3
	defaultRetryMax       = 3
	defaultRetryDelay     = 60 * time.Second
	defaultInterMessage   = 30 * time.Second
	defaultContactsPath   = "contacts.csv"
	defaultAuditPath      = "message_log.txt"
	defaultScheduleHour   = 9
	defaultScheduleMinute = 0

	// Every send targets the next occurrence of "now plus this window",
	// which keeps a just-scheduled delivery a couple of minutes out.
	defaultLookahead = 2 * time.Minute
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "info", Console: true}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapChannelConfig(cfg *config.Config) channel.Config {
	if cfg == nil {
		return channel.Config{}
	}
	return channel.Config{
		Driver: cfg.Channel.Driver,
		Telegram: channel.TelegramConfig{
			Token:      cfg.Channel.Telegram.Token,
			Recipients: cfg.Channel.Telegram.Recipients,
		},
	}
}

func mapContactsConfig(cfg *config.Config) (contacts.Config, error) {
	out := contacts.Config{Driver: "csv", Path: defaultContactsPath}
	if cfg == nil {
		return out, nil
	}
	if p := strings.TrimSpace(cfg.ContactsPath); p != "" {
		out.Path = p
	}
	if cfg.Contacts == nil {
		return out, nil
	}
	if d := strings.TrimSpace(cfg.Contacts.Driver); d != "" {
		out.Driver = d
	}
	busy, err := config.ParseDurationOrDefault("contacts.busy_timeout", cfg.Contacts.BusyTimeout, time.Second)
	if err != nil {
		return contacts.Config{}, err
	}
	out.BusyTimeout = busy
	return out, nil
}

func auditPath(cfg *config.Config) string {
	if cfg != nil {
		if p := strings.TrimSpace(cfg.LogPath); p != "" {
			return p
		}
	}
	return defaultAuditPath
}

func mapDispatchConfig(cfg *config.Config) dispatch.Config {
	out := dispatch.Config{
		DefaultCountryCode: defaultCountryCode,
		WaitTime:           defaultWaitSeconds * time.Second,
		CloseTime:          defaultCloseSeconds * time.Second,
		RetryMax:           defaultRetryMax,
		RetryDelay:         defaultRetryDelay,
		Lookahead:          defaultLookahead,
	}
	if cfg == nil {
		return out
	}
	if cc := strings.TrimSpace(cfg.DefaultCountryCode); cc != "" {
		out.DefaultCountryCode = cc
	}
	if cfg.WaitSeconds > 0 {
		out.WaitTime = time.Duration(cfg.WaitSeconds) * time.Second
	}
	if cfg.CloseSeconds > 0 {
		out.CloseTime = time.Duration(cfg.CloseSeconds) * time.Second
	}
	// Explicit 0 means "no retries"; only an omitted field gets the default.
	if cfg.MaxRetryAttempts != nil && *cfg.MaxRetryAttempts >= 0 {
		out.RetryMax = *cfg.MaxRetryAttempts
	}
	if cfg.RetryDelaySeconds > 0 {
		out.RetryDelay = time.Duration(cfg.RetryDelaySeconds) * time.Second
	}
	return out
}

func mapBulkConfig(cfg *config.Config) bulk.Config {
	out := bulk.Config{InterMessageDelay: defaultInterMessage}
	if cfg != nil && cfg.InterMessageDelaySeconds > 0 {
		out.InterMessageDelay = time.Duration(cfg.InterMessageDelaySeconds) * time.Second
	}
	return out
}

func mapScheduleConfig(cfg *config.Config) schedule.Config {
	if cfg == nil {
		return schedule.Config{}
	}
	return schedule.Config{
		Enabled:  cfg.Schedule.Enabled,
		Timezone: cfg.Schedule.Timezone,
	}
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	if cfg == nil {
		return pprof.Config{}, nil
	}
	pc := cfg.Pprof
	readT, err := config.ParseDurationOrDefault("pprof.read_timeout", pc.ReadTimeout, 5*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	// WriteTimeout default stays 0: CPU profiles stream longer than any
	// sane fixed budget.
	writeT, err := config.ParseDurationField("pprof.write_timeout", pc.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idleT, err := config.ParseDurationOrDefault("pprof.idle_timeout", pc.IdleTimeout, 60*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:       pc.Enabled,
		Addr:          strings.TrimSpace(pc.Addr),
		Token:         strings.TrimSpace(pc.Token),
		AllowInsecure: pc.AllowInsecure,
		ReadTimeout:   readT,
		WriteTimeout:  writeT,
		IdleTimeout:   idleT,
	}, nil
}

// scheduleDefaults resolves the clock used when a job or prompt omits its
// own time. Hour is a pointer upstream so 0 (midnight) survives.
func scheduleDefaults(cfg *config.Config) (hour, minute int) {
	hour, minute = defaultScheduleHour, defaultScheduleMinute
	if cfg == nil {
		return hour, minute
	}
	if cfg.DefaultScheduleHour != nil {
		hour = *cfg.DefaultScheduleHour
	}
	if cfg.DefaultScheduleMinute != 0 {
		minute = cfg.DefaultScheduleMinute
	}
	return hour, minute
}

// validateConfig rejects configs that would misbehave at runtime. It runs
// once at startup and again on every reload before the new config commits.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is empty")
	}

	if cfg.WaitSeconds < 0 {
		return fmt.Errorf("wait_seconds must be >= 0, got %d", cfg.WaitSeconds)
	}
	if cfg.CloseSeconds < 0 {
		return fmt.Errorf("close_seconds must be >= 0, got %d", cfg.CloseSeconds)
	}
	if cfg.MaxRetryAttempts != nil && *cfg.MaxRetryAttempts < 0 {
		return fmt.Errorf("max_retry_attempts must be >= 0, got %d", *cfg.MaxRetryAttempts)
	}
	if cfg.RetryDelaySeconds < 0 {
		return fmt.Errorf("retry_delay_seconds must be >= 0, got %d", cfg.RetryDelaySeconds)
	}
	if cfg.InterMessageDelaySeconds < 0 {
		return fmt.Errorf("inter_message_delay_seconds must be >= 0, got %d", cfg.InterMessageDelaySeconds)
	}
	if cc := strings.TrimSpace(cfg.DefaultCountryCode); cc != "" && !strings.HasPrefix(cc, "+") {
		return fmt.Errorf("default_country_code must start with '+', got %q", cc)
	}
	if h := cfg.DefaultScheduleHour; h != nil && (*h < 0 || *h > 23) {
		return fmt.Errorf("default_schedule_hour must be in 0..23, got %d", *h)
	}
	if m := cfg.DefaultScheduleMinute; m < 0 || m > 59 {
		return fmt.Errorf("default_schedule_minute must be in 0..59, got %d", m)
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Channel.Driver)); d {
	case "", "dryrun", "dry-run":
	case "telegram":
		if strings.TrimSpace(cfg.Channel.Telegram.Token) == "" {
			return fmt.Errorf("channel.telegram.token is required when channel.driver=telegram")
		}
	default:
		return fmt.Errorf("unknown channel.driver: %s", cfg.Channel.Driver)
	}

	if cfg.Contacts != nil {
		switch d := strings.ToLower(strings.TrimSpace(cfg.Contacts.Driver)); d {
		case "", "csv", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("unknown contacts.driver: %s", cfg.Contacts.Driver)
		}
	}
	if _, err := mapContactsConfig(cfg); err != nil {
		return err
	}

	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	if err := validateJobs(cfg); err != nil {
		return err
	}

	if _, err := mapPprofConfig(cfg); err != nil {
		return err
	}
	return nil
}
