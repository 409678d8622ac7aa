package config

// Config is the relay configuration file. Durations are Go duration strings
// ("500ms", "10s").
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Ingress      IngressConfig      `json:"ingress"`
	Delivery     DeliveryConfig     `json:"delivery"`
	State        StateConfig        `json:"state"`
	Localization LocalizationConfig `json:"localization"`

	// Receivers enables built-in receivers by identity ("silent", "audit").
	Receivers map[string]bool `json:"receivers,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// StorageConfig selects the backend holding the revivable receiver set.
// An empty driver (or "none") keeps the set in memory only.
type StorageConfig struct {
	Driver string `json:"driver" validate:"omitempty,oneof=none memory mem file sqlite sqlite3 bolt bbolt redis postgres postgresql pg"`
	Key    string `json:"key,omitempty"`

	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`

	DSN string `json:"dsn,omitempty"`

	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty" validate:"gte=0"`

	DialTimeout string `json:"dial_timeout,omitempty"`

	// Deferred starts the registry against an unattached store and attaches
	// the backend only once it opened, retrying in the background.
	Deferred bool `json:"deferred,omitempty"`
}

type IngressConfig struct {
	NATS *NATSIngressConfig `json:"nats,omitempty"`
	HTTP *HTTPIngressConfig `json:"http,omitempty"`
}

type NATSIngressConfig struct {
	URL     string `json:"url" validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Queue   string `json:"queue,omitempty"`
}

type HTTPIngressConfig struct {
	Addr         string `json:"addr" validate:"required"`
	MaxBodyBytes int64  `json:"max_body_bytes,omitempty" validate:"gte=0"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	Pprof        bool   `json:"pprof,omitempty"`
}

// DeliveryConfig wires the renderers (visible notifications) and sinks (every
// delivered payload).
type DeliveryConfig struct {
	Telegram *TelegramDeliveryConfig `json:"telegram,omitempty"`
	Desktop  *DesktopDeliveryConfig  `json:"desktop,omitempty"`
	NATS     *NATSDeliveryConfig     `json:"nats,omitempty"`
	Log      *LogDeliveryConfig      `json:"log,omitempty"`
}

type TelegramDeliveryConfig struct {
	Token      string `json:"token" validate:"required"`
	ChatID     int64  `json:"chat_id" validate:"required"`
	ThreadID   int    `json:"thread_id,omitempty" validate:"gte=0"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
	Timeout    string `json:"timeout,omitempty"`
}

type DesktopDeliveryConfig struct {
	Enabled bool   `json:"enabled"`
	AppName string `json:"app_name,omitempty"`
	Icon    string `json:"icon,omitempty"`
}

type NATSDeliveryConfig struct {
	// URL defaults to ingress.nats.url.
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject" validate:"required"`
}

type LogDeliveryConfig struct {
	Enabled bool `json:"enabled"`
}

// StateConfig seeds the app state used to decide notification visibility.
type StateConfig struct {
	Background bool `json:"background"`
}

type LocalizationConfig struct {
	// Strings maps localization keys to Printf-style templates.
	Strings map[string]string `json:"strings,omitempty"`
}
