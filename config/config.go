package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"breakout-trader/internal/indicator"
	"breakout-trader/internal/model"
	"breakout-trader/internal/strategy"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Bybit credentials
	BybitAPIKey    string
	BybitAPISecret string
	BybitTestnet   bool

	// Instrument
	Symbol      string
	BarInterval string
	HistoryBars int

	// Indicators (comma-separated windows)
	SMAWindows     string
	STDWindows     string
	EMAWindows     string
	MACD           string // short,long,signal
	DonchianWindow int
	ATRWindow      int

	// Risk
	StopRange       float64
	LossRate        float64
	StopLossEnabled bool

	// Loop timing
	RefreshInterval time.Duration
	PollInterval    time.Duration
	KlineStream     bool

	// Signal rules (comma-separated names, applied in order)
	SignalRules string

	// Gateway resilience
	GatewayTimeout    time.Duration
	GatewayMaxRetries int

	// Infrastructure
	SQLitePath    string
	RedisAddr     string // empty disables the Redis publisher
	RedisPassword string
	MetricsAddr   string

	// Operator control API
	ControlAddr       string
	ControlTOTPSecret string // empty disables the control API

	// Alerts (each backend is enabled when its settings are present)
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string

	LogLevel string

	// Paper trading
	PaperMode        bool
	PaperBalance     float64
	PaperSlippageBps float64
}

// LoadDotEnv loads variables from path (default ".env") if it exists.
// Variables already set in the environment win.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("[config] failed to load %s: %v", path, err)
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		BybitAPIKey:    getEnv("BYBIT_API_KEY", ""),
		BybitAPISecret: getEnv("BYBIT_API_SECRET", ""),
		BybitTestnet:   getBool("BYBIT_TESTNET", true),

		Symbol:      strings.ToUpper(getEnv("SYMBOL", "BTCUSD")),
		BarInterval: getEnv("BAR_INTERVAL", "1"),
		HistoryBars: getInt("HISTORY_BARS", 1000),

		SMAWindows:     getEnv("SMA_WINDOWS", "10,50"),
		STDWindows:     getEnv("STD_WINDOWS", "10,50"),
		EMAWindows:     getEnv("EMA_WINDOWS", "10,50"),
		MACD:           getEnv("MACD", "9,17,7"),
		DonchianWindow: getInt("DONCHIAN_WINDOW", 20),
		ATRWindow:      getInt("ATR_WINDOW", 5),

		StopRange:       getFloat("STOP_RANGE", 2.0),
		LossRate:        getFloat("LOSS_RATE", 0.001),
		StopLossEnabled: getBool("STOP_LOSS_ENABLED", false),

		RefreshInterval: time.Duration(getInt("REFRESH_INTERVAL_SEC", 20)) * time.Second,
		PollInterval:    time.Duration(getInt("POLL_INTERVAL_MS", 500)) * time.Millisecond,
		KlineStream:     getBool("KLINE_STREAM", true),

		SignalRules: getEnv("SIGNAL_RULES", strings.Join(strategy.DefaultRules, ",")),

		GatewayTimeout:    time.Duration(getInt("GATEWAY_TIMEOUT_SEC", 7)) * time.Second,
		GatewayMaxRetries: getInt("GATEWAY_MAX_RETRIES", 3),

		SQLitePath:    getEnv("SQLITE_PATH", "data/trader.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		ControlAddr:       getEnv("CONTROL_ADDR", ":9096"),
		ControlTOTPSecret: getEnv("CONTROL_TOTP_SECRET", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		PaperMode:        getBool("PAPER_MODE", false),
		PaperBalance:     getFloat("PAPER_BALANCE", 1.0),
		PaperSlippageBps: getFloat("PAPER_SLIPPAGE_BPS", 5),
	}
}

// Validate reports configuration that must stop the process at startup.
func (c *Config) Validate() error {
	var errs []error
	if !c.PaperMode && (c.BybitAPIKey == "" || c.BybitAPISecret == "") {
		errs = append(errs, errors.New("BYBIT_API_KEY and BYBIT_API_SECRET are required unless PAPER_MODE=true"))
	}
	if c.Symbol == "" {
		errs = append(errs, errors.New("SYMBOL must not be empty"))
	}
	if _, err := model.IntervalDuration(c.BarInterval); err != nil {
		errs = append(errs, fmt.Errorf("BAR_INTERVAL: %w", err))
	}
	ind, err := c.Indicators()
	if err != nil {
		errs = append(errs, err)
	} else if err := ind.CheckHistory(c.HistoryBars); err != nil {
		errs = append(errs, fmt.Errorf("HISTORY_BARS: %w", err))
	}
	if c.StopRange <= 0 {
		errs = append(errs, fmt.Errorf("STOP_RANGE must be > 0, got %g", c.StopRange))
	}
	if c.LossRate <= 0 || c.LossRate >= 1 {
		errs = append(errs, fmt.Errorf("LOSS_RATE must be in (0, 1), got %g", c.LossRate))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, errors.New("REFRESH_INTERVAL_SEC must be > 0"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL_MS must be > 0"))
	}
	if _, err := strategy.RulesByName(c.Rules()); err != nil {
		errs = append(errs, fmt.Errorf("SIGNAL_RULES: %w", err))
	}
	if c.GatewayMaxRetries < 0 {
		errs = append(errs, errors.New("GATEWAY_MAX_RETRIES must be >= 0"))
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	if c.PaperMode && c.PaperBalance <= 0 {
		errs = append(errs, errors.New("PAPER_BALANCE must be > 0"))
	}
	return errors.Join(errs...)
}

// Indicators parses the window settings into an indicator.Config.
func (c *Config) Indicators() (indicator.Config, error) {
	sma, err := parseInts("SMA_WINDOWS", c.SMAWindows)
	if err != nil {
		return indicator.Config{}, err
	}
	std, err := parseInts("STD_WINDOWS", c.STDWindows)
	if err != nil {
		return indicator.Config{}, err
	}
	ema, err := parseInts("EMA_WINDOWS", c.EMAWindows)
	if err != nil {
		return indicator.Config{}, err
	}
	macd, err := parseInts("MACD", c.MACD)
	if err != nil {
		return indicator.Config{}, err
	}
	if len(macd) != 3 {
		return indicator.Config{}, fmt.Errorf("MACD: want short,long,signal, got %q", c.MACD)
	}

	cfg := indicator.Config{
		SMAWindows:     sma,
		STDWindows:     std,
		EMAWindows:     ema,
		MACDShort:      macd[0],
		MACDLong:       macd[1],
		MACDSignal:     macd[2],
		DonchianWindow: c.DonchianWindow,
		ATRWindow:      c.ATRWindow,
	}
	return cfg, cfg.Validate()
}

// Rules splits SignalRules into rule names.
func (c *Config) Rules() []string {
	return strings.Split(c.SignalRules, ",")
}

// parseInts parses a comma-separated list of positive integers.
func parseInts(name, s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%s: invalid value %q", name, p)
		}
		out = append(out, n)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %t", key, v, fallback)
		return fallback
	}
	return b
}
