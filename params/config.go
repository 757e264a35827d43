package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Trading struct {
	CommissionRate float64 // fraction of notional, e.g. 0.001 = 10 bps
	MinCommission  float64 // floor in quote currency
	DefaultCapital float64 // initial capital for bootstrapped accounts
}

type Monitor struct {
	// Interval between limit-order evaluation ticks. Every tick fetches one
	// price per symbol with pending limit orders and re-checks all of them.
	Interval time.Duration
}

type Curve struct {
	FineInterval  time.Duration // fine series cadence (5m series)
	MediumEvery   int           // every Nth fine point lands in the 1h series
	CoarseEvery   int           // every Mth medium point lands in the 1d series
	FineRetention time.Duration // fine points older than this are pruned
}

type Server struct {
	Addr             string
	SnapshotInterval time.Duration // periodic snapshot refresh per bound account
}

type Config struct {
	DBPath    string
	LogFile   string
	OracleTTL time.Duration // price cache TTL
	SimFeed   bool          // run the built-in random-walk feed
	Trading   Trading
	Monitor   Monitor
	Curve     Curve
	Server    Server
}

func Default() Config {
	return Config{
		DBPath:    "data/arena",
		LogFile:   "data/arena.log",
		OracleTTL: 30 * time.Second,
		SimFeed:   true,
		Trading: Trading{
			CommissionRate: 0.001,
			MinCommission:  0.1,
			DefaultCapital: 100000,
		},
		Monitor: Monitor{
			Interval: 5 * time.Second,
		},
		Curve: Curve{
			FineInterval:  5 * time.Minute,
			MediumEvery:   12, // 12 × 5m = 1h
			CoarseEvery:   24, // 24 × 1h = 1d
			FineRetention: 7 * 24 * time.Hour,
		},
		Server: Server{
			Addr:             ":8080",
			SnapshotInterval: 10 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SIM_FEED"); v != "" {
		cfg.SimFeed = v == "true"
	}

	if ms, ok := envMillis("ORACLE_TTL_MS"); ok {
		cfg.OracleTTL = ms
	}
	if ms, ok := envMillis("MONITOR_INTERVAL_MS"); ok {
		cfg.Monitor.Interval = ms
	}
	if ms, ok := envMillis("CURVE_INTERVAL_MS"); ok {
		cfg.Curve.FineInterval = ms
	}
	if ms, ok := envMillis("SNAPSHOT_INTERVAL_MS"); ok {
		cfg.Server.SnapshotInterval = ms
	}
	if ms, ok := envMillis("CURVE_FINE_RETENTION_MS"); ok {
		cfg.Curve.FineRetention = ms
	}

	if v := os.Getenv("CURVE_MEDIUM_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Curve.MediumEvery = n
		}
	}
	if v := os.Getenv("CURVE_COARSE_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Curve.CoarseEvery = n
		}
	}

	if v := os.Getenv("COMMISSION_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Trading.CommissionRate = f
		}
	}
	if v := os.Getenv("MIN_COMMISSION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Trading.MinCommission = f
		}
	}
	if v := os.Getenv("DEFAULT_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Trading.DefaultCapital = f
		}
	}

	return cfg
}

func envMillis(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
