package config

// Config is the top-level libraripro configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Policy    PolicyConfig    `mapstructure:"policy" yaml:"policy"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	Client    ClientConfig    `mapstructure:"client" yaml:"client"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// StoreConfig selects the persistence backend: memory, sqlite or postgres.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// PolicyConfig holds the lending rules. FinePerDay is a decimal string.
type PolicyConfig struct {
	LoanDays    int    `mapstructure:"loan_days" yaml:"loan_days"`
	RenewalDays int    `mapstructure:"renewal_days" yaml:"renewal_days"`
	MaxRenewals int    `mapstructure:"max_renewals" yaml:"max_renewals"` // 0 = unlimited
	FinePerDay  string `mapstructure:"fine_per_day" yaml:"fine_per_day"`
	DueSoonDays int    `mapstructure:"due_soon_days" yaml:"due_soon_days"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" yaml:"service_name"`
}

// RateLimitConfig is the per-client request budget of the HTTP API.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// ClientConfig points the CLI at a running API instead of the local store.
type ClientConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}
