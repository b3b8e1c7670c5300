package config

type Config struct {
	// Dispatch options. Zero values fall back to documented defaults at
	// wiring time; see the map functions in internal/app.
	DefaultCountryCode string `json:"default_country_code,omitempty"`

	// WaitSeconds is the per-delivery transport budget (channel readiness,
	// API call). CloseSeconds is the post-send settle pause.
	WaitSeconds  int `json:"wait_seconds,omitempty"`
	CloseSeconds int `json:"close_seconds,omitempty"`

	// MaxRetryAttempts is a pointer so an explicit 0 (no retries) stays
	// distinguishable from an omitted field (default 3).
	MaxRetryAttempts  *int `json:"max_retry_attempts,omitempty"`
	RetryDelaySeconds int  `json:"retry_delay_seconds,omitempty"`

	// InterMessageDelaySeconds paces consecutive sends of a bulk run.
	InterMessageDelaySeconds int `json:"inter_message_delay_seconds,omitempty"`

	ContactsPath string `json:"contacts_path,omitempty"`
	LogPath      string `json:"log_path,omitempty"`

	// DefaultScheduleHour is a pointer so 0 (midnight) stays distinguishable
	// from an omitted field (default 9).
	DefaultScheduleHour   *int `json:"default_schedule_hour,omitempty"`
	DefaultScheduleMinute int  `json:"default_schedule_minute,omitempty"`

	Logging  LoggingConfig   `json:"logging"`
	Channel  ChannelConfig   `json:"channel"`
	Contacts *ContactsConfig `json:"contacts,omitempty"`
	Schedule ScheduleConfig  `json:"schedule"`
	Pprof    PprofConfig     `json:"pprof,omitempty"`
}

// ChannelConfig selects the delivery transport.
//
// Example:
//
//	"channel": { "driver": "telegram", "telegram": { "token": "...", "recipients": { "+911234567890": 123456 } } }
type ChannelConfig struct {
	// Driver is "telegram" or "dryrun". Empty defaults to "dryrun".
	Driver   string         `json:"driver"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// Recipients maps normalized phone numbers to Telegram chat IDs.
	// Telegram cannot address a chat by phone number, so the mapping is
	// the channel's address book.
	Recipients map[string]int64 `json:"recipients,omitempty"`
}

// ContactsConfig controls the contact store backend.
// Nil section means the CSV driver on contacts_path.
type ContactsConfig struct {
	// Driver is "csv" (default) or "sqlite".
	Driver      string `json:"driver"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ScheduleConfig controls the recurring trigger service (daemon mode).
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`

	// Jobs are re-applied (upsert by name) on config reload.
	Jobs []JobConfig `json:"jobs,omitempty"`
}

// JobConfig declares one recurring or one-shot send.
//
// Exactly one of Phone/Group must be set: Phone sends a single message,
// Group runs a bulk send over that contact group.
type JobConfig struct {
	Name string `json:"name"`
	// Kind is "daily", "weekly" or "once".
	Kind string `json:"kind"`
	// At is "HH:MM" (24h). Empty falls back to
	// default_schedule_hour/default_schedule_minute.
	At string `json:"at,omitempty"`
	// Weekday is required for weekly jobs ("monday".."sunday" or "mon".."sun").
	Weekday string `json:"weekday,omitempty"`
	// Date is required for once jobs ("2006-01-02", scheduler timezone).
	Date string `json:"date,omitempty"`

	Phone       string `json:"phone,omitempty"`
	Group       string `json:"group,omitempty"`
	Message     string `json:"message"`
	Personalize bool   `json:"personalize,omitempty"`

	// Timeout is a Go duration string bounding one firing. Empty leaves the
	// run unbounded.
	Timeout string `json:"timeout,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
