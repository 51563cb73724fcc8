package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"signal-alert/internal/domain"
)

type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string
	HTTPPort         int

	DataDir string
	Symbols []string

	BinanceBaseURL string
	BinanceWSURL   string
	FeedEnabled    bool

	TolerancePct  float64
	StopWinsTies  bool
	RetentionDays int

	CooldownMins  map[string]int
	FlipDwellMins int

	ATRStopEnabled bool
	ATRPeriod      int
	ATRMult        float64
	ATRMinPct      float64
	ATRMaxPct      float64

	RepriceSecs      int
	IntradayTickSecs int
	DailyTickSecs    int
	MaintenanceSecs  int
}

var defaultSymbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT"}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set, position audit mirror disabled")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.HTTPPort = envInt("HTTP_PORT", 8080)

	cfg.DataDir = strings.TrimSpace(os.Getenv("DATA_DIR"))
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.Symbols = parseSymbols(os.Getenv("SYMBOLS"))

	cfg.BinanceBaseURL = strings.TrimSpace(os.Getenv("BINANCE_BASE_URL"))
	if cfg.BinanceBaseURL == "" {
		cfg.BinanceBaseURL = "https://api.binance.com"
	}
	cfg.BinanceWSURL = strings.TrimSpace(os.Getenv("BINANCE_WS_URL"))
	if cfg.BinanceWSURL == "" {
		cfg.BinanceWSURL = "wss://stream.binance.com:9443"
	}
	cfg.FeedEnabled = !strings.EqualFold(strings.TrimSpace(os.Getenv("FEED_ENABLED")), "false")

	cfg.TolerancePct = envFloat("PRICE_TOLERANCE_PCT", 0.5)
	cfg.StopWinsTies = !strings.EqualFold(strings.TrimSpace(os.Getenv("STOP_WINS_TIES")), "false")
	cfg.RetentionDays = envInt("POSITION_RETENTION_DAYS", 30)

	cfg.CooldownMins = map[string]int{
		"15m": envInt("COOLDOWN_15M_MINS", 60),
		"1h":  envInt("COOLDOWN_1H_MINS", 120),
		"4h":  envInt("COOLDOWN_4H_MINS", 240),
		"1d":  envInt("COOLDOWN_1D_MINS", 1440),
	}
	cfg.FlipDwellMins = envInt("FLIP_DWELL_MINS", 0)

	cfg.ATRStopEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("ATR_STOP_ENABLED")), "true")
	cfg.ATRPeriod = envInt("ATR_PERIOD", 14)
	cfg.ATRMult = envFloat("ATR_MULT", 1.5)
	cfg.ATRMinPct = envFloat("ATR_MIN_PCT", 1.0)
	cfg.ATRMaxPct = envFloat("ATR_MAX_PCT", 6.0)

	cfg.RepriceSecs = envInt("REPRICE_SECS", 30)
	cfg.IntradayTickSecs = envInt("INTRADAY_TICK_SECS", 300)
	cfg.DailyTickSecs = envInt("DAILY_TICK_SECS", 1800)
	cfg.MaintenanceSecs = envInt("MAINTENANCE_SECS", 3600)

	return cfg
}

// Cooldowns converts the per-interval minute table into durations.
func (c *Config) Cooldowns() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.CooldownMins))
	for interval, mins := range c.CooldownMins {
		out[interval] = time.Duration(mins) * time.Minute
	}
	return out
}

func (c *Config) Tolerance() float64 {
	return c.TolerancePct / 100
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c *Config) FlipDwell() time.Duration {
	return time.Duration(c.FlipDwellMins) * time.Minute
}

func parseSymbols(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return defaultSymbols
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		symbol := strings.ToUpper(strings.TrimSpace(part))
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		out = append(out, symbol)
	}
	if len(out) == 0 {
		return defaultSymbols
	}
	return out
}

func envInt(name string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("Warning: invalid %s=%q, using %d", name, v, fallback)
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			return n
		}
		log.Printf("Warning: invalid %s=%q, using %g", name, v, fallback)
	}
	return fallback
}

// Intervals returns the timeframes evaluated for a symbol.
func (c *Config) Intervals() []string {
	return domain.SupportedIntervals
}
