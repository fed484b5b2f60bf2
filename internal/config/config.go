package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"salesdesk/backend/internal/analytics"
	"salesdesk/backend/internal/logger"
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	ReferenceCacheTTLSeconds int
	AuthSecret               string
	AccessTokenTTLMinutes    int
	ManagerPIN               string
	LogLevel                 string
	LogFormat                string
	DashboardTimezone        string
	CollationLocale          string
	Thresholds               analytics.Thresholds
}

// Load reads the environment. Numeric values that fail to parse or are out of
// range fall back to their defaults.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	th := analytics.DefaultThresholds()
	defaults := map[string]any{
		"PORT":                          "8080",
		"ALLOWED_ORIGIN":                "http://127.0.0.1:3000",
		"REDIS_DB":                      0,
		"REFERENCE_CACHE_TTL_SECONDS":   60,
		"ACCESS_TOKEN_TTL_MINUTES":      480,
		"LOG_LEVEL":                     "info",
		"LOG_FORMAT":                    "json",
		"DASHBOARD_TIMEZONE":            "UTC",
		"COLLATION_LOCALE":              "en",
		"ALERT_REVENUE_DROP_LOW_PCT":    th.RevenueDropLowPct,
		"ALERT_REVENUE_DROP_MEDIUM_PCT": th.RevenueDropMediumPct,
		"ALERT_REVENUE_DROP_HIGH_PCT":   th.RevenueDropHighPct,
		"ALERT_REFUND_SPIKE_PCT":        th.RefundSpikePct,
		"ALERT_MAKER_MIN_BASELINE":      th.MakerMinBaseline,
		"ALERT_MAKER_SPIKE_PCT":         th.MakerSpikePct,
		"ALERT_WEEKDAY_MIN_COUNT":       th.WeekdayMinCount,
		"ALERT_WEEKDAY_DROP_PCT":        th.WeekdayDropPct,
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	return Config{
		Port:                     v.GetString("PORT"),
		AllowedOrigin:            v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:              strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:                strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		RedisDB:                  max(v.GetInt("REDIS_DB"), 0),
		ReferenceCacheTTLSeconds: positiveInt(v, "REFERENCE_CACHE_TTL_SECONDS", 60),
		AuthSecret:               strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:    positiveInt(v, "ACCESS_TOKEN_TTL_MINUTES", 480),
		ManagerPIN:               strings.TrimSpace(v.GetString("MANAGER_PIN")),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		LogFormat:                v.GetString("LOG_FORMAT"),
		DashboardTimezone:        strings.TrimSpace(v.GetString("DASHBOARD_TIMEZONE")),
		CollationLocale:          strings.TrimSpace(v.GetString("COLLATION_LOCALE")),
		Thresholds: analytics.Thresholds{
			RevenueDropLowPct:    positiveFloat(v, "ALERT_REVENUE_DROP_LOW_PCT", th.RevenueDropLowPct),
			RevenueDropMediumPct: positiveFloat(v, "ALERT_REVENUE_DROP_MEDIUM_PCT", th.RevenueDropMediumPct),
			RevenueDropHighPct:   positiveFloat(v, "ALERT_REVENUE_DROP_HIGH_PCT", th.RevenueDropHighPct),
			RefundSpikePct:       positiveFloat(v, "ALERT_REFUND_SPIKE_PCT", th.RefundSpikePct),
			MakerMinBaseline:     positiveFloat(v, "ALERT_MAKER_MIN_BASELINE", th.MakerMinBaseline),
			MakerSpikePct:        positiveFloat(v, "ALERT_MAKER_SPIKE_PCT", th.MakerSpikePct),
			WeekdayMinCount:      positiveInt(v, "ALERT_WEEKDAY_MIN_COUNT", th.WeekdayMinCount),
			WeekdayDropPct:       positiveFloat(v, "ALERT_WEEKDAY_DROP_PCT", th.WeekdayDropPct),
		},
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves DASHBOARD_TIMEZONE. "Local" selects the host zone.
func (c Config) Location() (*time.Location, error) {
	if c.DashboardTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.DashboardTimezone)
}

// Language parses COLLATION_LOCALE, falling back to English.
func (c Config) Language() language.Tag {
	tag, err := language.Parse(c.CollationLocale)
	if err != nil {
		return language.English
	}
	return tag
}

func (c Config) Logger() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Format = c.LogFormat
	return cfg
}

func positiveInt(v *viper.Viper, key string, fallback int) int {
	n := v.GetInt(key)
	if n < 1 {
		return fallback
	}
	return n
}

func positiveFloat(v *viper.Viper, key string, fallback float64) float64 {
	f := v.GetFloat64(key)
	if f <= 0 {
		return fallback
	}
	return f
}
