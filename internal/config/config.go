// Package config загружает конфигурацию демона из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// а godotenv подхватывает локальный .env, если он есть.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	DBHost           string        `envconfig:"DB_HOST" default:"postgres"`
	DBPort           int           `envconfig:"DB_PORT" default:"5432"`
	DBUser           string        `envconfig:"DB_USER" default:"faust"`
	DBPassword       string        `envconfig:"DB_PASSWORD" required:"true"`
	DBName           string        `envconfig:"DB_NAME" default:"faust"`
	DBSSLMode        string        `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns       int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns       int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	DBConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"30s"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Seoul"`

	// --- Device bridge ---
	BridgeListenAddr      string  `envconfig:"BRIDGE_LISTEN_ADDR" default:":8765"`
	BridgeEventsPerSecond float64 `envconfig:"BRIDGE_EVENTS_PER_SECOND" default:"50"`
	BridgeEventBurst      int     `envconfig:"BRIDGE_EVENT_BURST" default:"100"`

	// --- Blocking ---
	// Пакеты лаунчеров через запятую: домашний экран всегда проходит фильтры.
	HomeLaunchersRaw  string        `envconfig:"HOME_LAUNCHERS" default:"com.android.launcher3,com.google.android.apps.nexuslauncher,com.sec.android.app.launcher,com.miui.home"`
	HomeLaunchers     []string      `envconfig:"-"`
	DebounceWindow    time.Duration `envconfig:"DEBOUNCE_WINDOW" default:"300ms"`
	HomeCooldown      time.Duration `envconfig:"HOME_COOLDOWN" default:"1s"`
	HomeDetectTimeout time.Duration `envconfig:"HOME_DETECT_TIMEOUT" default:"500ms"`
	DismissDelay      time.Duration `envconfig:"DISMISS_DELAY" default:"150ms"`
	OverlayCountdown  time.Duration `envconfig:"OVERLAY_COUNTDOWN" default:"30s"`
	WorkerPoolSize    int           `envconfig:"WORKER_POOL_SIZE" default:"4"`

	// --- Economy ---
	PenaltyLaunch        int64 `envconfig:"PENALTY_LAUNCH" default:"6"`
	PenaltyQuit          int64 `envconfig:"PENALTY_QUIT" default:"3"`
	WeeklyResetThreshold int64 `envconfig:"WEEKLY_RESET_THRESHOLD" default:"100"`

	// --- Mining ---
	MiningInterval          time.Duration `envconfig:"MINING_INTERVAL" default:"1m"`
	MiningCatchUpMaxMinutes int64         `envconfig:"MINING_CATCHUP_MAX_MINUTES" default:"720"`

	// --- Owner bot ---
	TelegramBotToken        string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	OwnerIDsRaw             string  `envconfig:"OWNER_IDS"`
	OwnerIDs                []int64 `envconfig:"-"` // заполним вручную
	OwnerPasswordHash       string  `envconfig:"OWNER_PASSWORD_HASH"`
	BotMaxInflight          int     `envconfig:"BOT_MAX_INFLIGHT" default:"16"`
	BotUpdateTimeoutSeconds int     `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"20"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureBotEnabled     bool `envconfig:"FEATURE_BOT_ENABLED" default:"true"`
	FeatureCatchUpEnabled bool `envconfig:"FEATURE_CATCHUP_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает часовой пояс приложения. Если зона не найдена - UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.DebounceWindow <= 0 {
		return fmt.Errorf("DEBOUNCE_WINDOW должен быть > 0")
	}
	if c.MiningInterval <= 0 {
		return fmt.Errorf("MINING_INTERVAL должен быть > 0")
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE должен быть > 0")
	}
	if c.PenaltyLaunch < 0 || c.PenaltyQuit < 0 {
		return fmt.Errorf("штрафы не могут быть отрицательными")
	}
	if c.BridgeEventsPerSecond <= 0 || c.BridgeEventBurst <= 0 {
		return fmt.Errorf("некорректные BRIDGE_EVENTS_PER_SECOND/BRIDGE_EVENT_BURST")
	}
	if len(c.HomeLaunchers) == 0 {
		return fmt.Errorf("HOME_LAUNCHERS пуст")
	}
	if c.FeatureBotEnabled {
		if c.TelegramBotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN обязателен при FEATURE_BOT_ENABLED=true")
		}
		if len(c.OwnerIDs) == 0 {
			return fmt.Errorf("OWNER_IDS обязателен при FEATURE_BOT_ENABLED=true")
		}
		if c.OwnerPasswordHash == "" {
			return fmt.Errorf("OWNER_PASSWORD_HASH обязателен при FEATURE_BOT_ENABLED=true")
		}
		if c.BotMaxInflight <= 0 {
			return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
		}
		if c.BotUpdateTimeoutSeconds <= 0 {
			return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
		}
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	// .env необязателен: в docker переменные приходят из compose
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.OwnerIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("OWNER_IDS parse: %w", err)
	}
	cfg.OwnerIDs = ids
	cfg.HomeLaunchers = parseStringCSV(cfg.HomeLaunchersRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseStringCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
