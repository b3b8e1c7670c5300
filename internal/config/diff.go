package config

import (
	"reflect"
	"sort"
	"strings"

	logx "blastbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Dispatch options (flat, top-level keys)
	if strings.TrimSpace(oldCfg.DefaultCountryCode) != strings.TrimSpace(newCfg.DefaultCountryCode) ||
		oldCfg.WaitSeconds != newCfg.WaitSeconds ||
		oldCfg.CloseSeconds != newCfg.CloseSeconds ||
		!intPtrEqual(oldCfg.MaxRetryAttempts, newCfg.MaxRetryAttempts) ||
		oldCfg.RetryDelaySeconds != newCfg.RetryDelaySeconds ||
		oldCfg.InterMessageDelaySeconds != newCfg.InterMessageDelaySeconds ||
		strings.TrimSpace(oldCfg.ContactsPath) != strings.TrimSpace(newCfg.ContactsPath) ||
		strings.TrimSpace(oldCfg.LogPath) != strings.TrimSpace(newCfg.LogPath) ||
		!intPtrEqual(oldCfg.DefaultScheduleHour, newCfg.DefaultScheduleHour) ||
		oldCfg.DefaultScheduleMinute != newCfg.DefaultScheduleMinute {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.default_country_code", strings.TrimSpace(newCfg.DefaultCountryCode)),
			logx.Int("dispatch.wait_seconds", newCfg.WaitSeconds),
			logx.Int("dispatch.close_seconds", newCfg.CloseSeconds),
			logx.Int("dispatch.retry_delay_seconds", newCfg.RetryDelaySeconds),
			logx.Int("dispatch.inter_message_delay_seconds", newCfg.InterMessageDelaySeconds),
			logx.Bool("dispatch.contacts_path_set", strings.TrimSpace(newCfg.ContactsPath) != ""),
			logx.Bool("dispatch.log_path_set", strings.TrimSpace(newCfg.LogPath) != ""),
		)
		if newCfg.MaxRetryAttempts != nil {
			attrs = append(attrs, logx.Int("dispatch.max_retry_attempts", *newCfg.MaxRetryAttempts))
		}
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Channel (never log token)
	if strings.TrimSpace(oldCfg.Channel.Driver) != strings.TrimSpace(newCfg.Channel.Driver) ||
		(strings.TrimSpace(oldCfg.Channel.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Channel.Telegram.Token) != "") ||
		!reflect.DeepEqual(oldCfg.Channel.Telegram.Recipients, newCfg.Channel.Telegram.Recipients) {
		changed = append(changed, "channel")
		attrs = append(attrs,
			logx.String("channel.driver", strings.TrimSpace(newCfg.Channel.Driver)),
			logx.Bool("channel.telegram.token_set", strings.TrimSpace(newCfg.Channel.Telegram.Token) != ""),
			logx.Int("channel.telegram.recipient_count", len(newCfg.Channel.Telegram.Recipients)),
		)
	}

	// Contacts backend. Nil section means the CSV driver.
	var oDriver, nDriver, oBusy, nBusy string
	if oldCfg.Contacts != nil {
		oDriver = strings.TrimSpace(oldCfg.Contacts.Driver)
		oBusy = strings.TrimSpace(oldCfg.Contacts.BusyTimeout)
	}
	if newCfg.Contacts != nil {
		nDriver = strings.TrimSpace(newCfg.Contacts.Driver)
		nBusy = strings.TrimSpace(newCfg.Contacts.BusyTimeout)
	}
	if oDriver != nDriver || oBusy != nBusy {
		changed = append(changed, "contacts")
		attrs = append(attrs,
			logx.String("contacts.driver", nDriver),
			logx.String("contacts.busy_timeout", nBusy),
		)
	}

	// Schedule (jobs compared structurally)
	if oldCfg.Schedule.Enabled != newCfg.Schedule.Enabled ||
		strings.TrimSpace(oldCfg.Schedule.Timezone) != strings.TrimSpace(newCfg.Schedule.Timezone) ||
		!reflect.DeepEqual(oldCfg.Schedule.Jobs, newCfg.Schedule.Jobs) {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
			logx.Int("schedule.job_count", len(newCfg.Schedule.Jobs)),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		strings.TrimSpace(oldCfg.Pprof.ReadTimeout) != strings.TrimSpace(newCfg.Pprof.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.WriteTimeout) != strings.TrimSpace(newCfg.Pprof.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.IdleTimeout) != strings.TrimSpace(newCfg.Pprof.IdleTimeout) ||
		(strings.TrimSpace(oldCfg.Pprof.Token) != "") != (strings.TrimSpace(newCfg.Pprof.Token) != "") {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
