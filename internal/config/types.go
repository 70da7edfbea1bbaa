package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Store    StoreConfig    `json:"store"`

	// Notifier controls delivery pacing. If the whole section is omitted,
	// defaults apply (3 msg/s, 2 retries).
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Audit enables the lifecycle audit trail. Omitted or driver "none"
	// disables it.
	Audit *AuditConfig `json:"audit,omitempty"`

	Janitor *JanitorConfig `json:"janitor,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
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

type StoreConfig struct {
	// Path of the reminders JSON file.
	Path string `json:"path"`
}

// NotifierConfig durations are Go duration strings (e.g. "500ms", "10s").
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

type AuditConfig struct {
	Driver string `json:"driver"` // none | file | sqlite
	Path   string `json:"path,omitempty"`
	// BusyTimeout is a Go duration string; sqlite only.
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// Retention is a Go duration string; entries older than this are pruned
	// by the janitor. Empty disables the sweep.
	Retention string `json:"retention,omitempty"`
}

type JanitorConfig struct {
	// Enabled is a pointer so "omitted" (default true) is distinguishable
	// from an explicit false.
	Enabled *bool `json:"enabled,omitempty"`
	// Schedule is a cron spec or "@every <duration>". Default "@every 1h".
	Schedule string `json:"schedule,omitempty"`
}
