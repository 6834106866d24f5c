package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env               string        `mapstructure:"ENV"`
	Port              string        `mapstructure:"PORT"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	AdminKey          string        `mapstructure:"ADMIN_KEY"`
	WebhookKey        string        `mapstructure:"WEBHOOK_KEY"`
	ExtractorURL      string        `mapstructure:"EXTRACTOR_URL"`
	CORSAllowed       string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	TicketingTimeout  time.Duration `mapstructure:"TICKETING_TIMEOUT"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DedupTTL          time.Duration `mapstructure:"DEDUP_TTL"`
	DedupMaxEntries   int           `mapstructure:"DEDUP_MAX_ENTRIES"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	Timezone          string        `mapstructure:"TIMEZONE"`
	PhoneRegion       string        `mapstructure:"PHONE_REGION"`
	PolicyFile        string        `mapstructure:"POLICY_FILE"`
	SenderRatePerMin  int           `mapstructure:"SENDER_RATE_PER_MIN"`
	SenderRateBurst   int           `mapstructure:"SENDER_RATE_BURST"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("TICKETING_TIMEOUT", "5s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DEDUP_TTL", "2m")
	v.SetDefault("DEDUP_MAX_ENTRIES", 10000)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("PHONE_REGION", "BR")
	v.SetDefault("POLICY_FILE", "configs/policies.yaml")
	v.SetDefault("SENDER_RATE_PER_MIN", 30)
	v.SetDefault("SENDER_RATE_BURST", 10)
	// Keys without a default are invisible to Unmarshal under AutomaticEnv.
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "ADMIN_KEY", "WEBHOOK_KEY", "EXTRACTOR_URL"} {
		v.SetDefault(key, "")
	}
}

// Location resolves TIMEZONE, falling back to UTC when the zone database
// does not know it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
