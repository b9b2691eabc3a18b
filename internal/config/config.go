package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Forecast strategy selectors.
const (
	ModelARIMA = "arima"
	ModelGBM   = "gbm"
)

// Fallback policies for points nothing else could fill. Exactly one is
// active per run.
const (
	FallbackMedianOrFloor = "median_or_floor"
	FallbackFixedZero     = "fixed_zero"
)

// ARIMAConfig holds the classical autoregressive strategy hyperparameters.
type ARIMAConfig struct {
	MinTrain       int
	MaxOrder       int
	Seasonal       bool
	SeasonalPeriod int // samples per season, 24 for hourly data with daily cycle
}

// GBMConfig holds the gradient-boosted regression strategy hyperparameters.
type GBMConfig struct {
	MaxDepth     int
	LearningRate float64
	MinTrain     int
	MaxIters     int
	Seed         int64
}

// PipelineConfig carries everything the per-sensor cascade needs. It is
// constructed once per run and passed through; stages hold no ambient state.
type PipelineConfig struct {
	MinValueMM float64
	MaxValueMM float64
	MinQuality *float64 // nil disables the quality check

	InterpolationLimit int

	ForecastEnabled bool
	ForecastModel   string
	ARIMA           ARIMAConfig
	GBM             GBMConfig

	FallbackPolicy string

	AggregationEnabled bool
	BucketWidth        time.Duration
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL string
	Variable    string
	Lookback    time.Duration

	RunInterval time.Duration
	RunOnce     bool
	DryRun      bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaBrokers   []string
	KafkaSinkTopic string // empty disables publishing

	Pipeline PipelineConfig
}

// Load reads configuration from environment variables (optionally .env),
// applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Variable:        sharedcfg.EnvOrDefault("CLEANER_VARIABLE", "precipitacion"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:  strings.TrimSpace(os.Getenv("KAFKA_SINK_TOPIC")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	lookbackHours, err := envInt("CLEANER_LOOKBACK_HOURS", 72)
	if err != nil {
		return nil, err
	}
	if lookbackHours <= 0 {
		return nil, errors.New("CLEANER_LOOKBACK_HOURS must be positive")
	}
	cfg.Lookback = time.Duration(lookbackHours) * time.Hour

	if cfg.RunInterval, err = envDuration("RUN_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RunInterval <= 0 {
		return nil, errors.New("RUN_INTERVAL must be positive")
	}
	if cfg.RunOnce, err = envBool("RUN_ONCE", false); err != nil {
		return nil, err
	}
	if cfg.DryRun, err = envBool("DRY_RUN", false); err != nil {
		return nil, err
	}

	if cfg.Pipeline, err = loadPipeline(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadPipeline() (PipelineConfig, error) {
	var p PipelineConfig
	var err error

	if p.MinValueMM, err = envFloat("CLEANER_MIN_VALUE_MM", 0.0); err != nil {
		return p, err
	}
	if p.MaxValueMM, err = envFloat("CLEANER_MAX_VALUE_MM", 150.0); err != nil {
		return p, err
	}
	if p.MinValueMM >= p.MaxValueMM {
		return p, errors.New("CLEANER_MIN_VALUE_MM must be below CLEANER_MAX_VALUE_MM")
	}
	if p.MinQuality, err = envOptionalFloat("CLEANER_MIN_QUALITY"); err != nil {
		return p, err
	}

	if p.InterpolationLimit, err = envInt("CLEANER_INTERPOLATION_LIMIT", 6); err != nil {
		return p, err
	}
	if p.InterpolationLimit < 0 {
		return p, errors.New("CLEANER_INTERPOLATION_LIMIT must not be negative")
	}

	if p.ForecastEnabled, err = envBool("CLEANER_FORECAST_ENABLED", true); err != nil {
		return p, err
	}
	p.ForecastModel = sharedcfg.EnvOrDefault("CLEANER_FORECAST_MODEL", ModelGBM)
	if p.ForecastModel != ModelARIMA && p.ForecastModel != ModelGBM {
		return p, fmt.Errorf("CLEANER_FORECAST_MODEL must be %q or %q", ModelARIMA, ModelGBM)
	}

	if p.ARIMA.MinTrain, err = envInt("CLEANER_ARIMA_MIN_TRAIN", 48); err != nil {
		return p, err
	}
	if p.ARIMA.MaxOrder, err = envInt("CLEANER_ARIMA_MAX_ORDER", 3); err != nil {
		return p, err
	}
	if p.ARIMA.Seasonal, err = envBool("CLEANER_ARIMA_SEASONAL", true); err != nil {
		return p, err
	}
	if p.ARIMA.SeasonalPeriod, err = envInt("CLEANER_ARIMA_M", 24); err != nil {
		return p, err
	}
	if p.ARIMA.MaxOrder < 1 || p.ARIMA.SeasonalPeriod < 2 {
		return p, errors.New("invalid CLEANER_ARIMA_MAX_ORDER or CLEANER_ARIMA_M")
	}

	if p.GBM.MaxDepth, err = envInt("CLEANER_GBM_MAX_DEPTH", 3); err != nil {
		return p, err
	}
	if p.GBM.LearningRate, err = envFloat("CLEANER_GBM_LEARNING_RATE", 0.1); err != nil {
		return p, err
	}
	if p.GBM.MinTrain, err = envInt("CLEANER_GBM_MIN_TRAIN", 24); err != nil {
		return p, err
	}
	if p.GBM.MaxIters, err = envInt("CLEANER_GBM_MAX_ITERS", 5); err != nil {
		return p, err
	}
	seed, err := envInt("CLEANER_GBM_SEED", 42)
	if err != nil {
		return p, err
	}
	p.GBM.Seed = int64(seed)
	if p.GBM.MaxDepth < 1 || p.GBM.LearningRate <= 0 || p.GBM.MaxIters < 1 {
		return p, errors.New("invalid CLEANER_GBM_MAX_DEPTH, CLEANER_GBM_LEARNING_RATE or CLEANER_GBM_MAX_ITERS")
	}

	p.FallbackPolicy = sharedcfg.EnvOrDefault("CLEANER_FALLBACK_POLICY", FallbackMedianOrFloor)
	if p.FallbackPolicy != FallbackMedianOrFloor && p.FallbackPolicy != FallbackFixedZero {
		return p, fmt.Errorf("CLEANER_FALLBACK_POLICY must be %q or %q", FallbackMedianOrFloor, FallbackFixedZero)
	}

	if p.AggregationEnabled, err = envBool("CLEANER_AGGREGATION_ENABLED", false); err != nil {
		return p, err
	}
	if p.BucketWidth, err = envDuration("CLEANER_BUCKET_WIDTH", 10*time.Minute); err != nil {
		return p, err
	}
	if p.AggregationEnabled && p.BucketWidth <= 0 {
		return p, errors.New("CLEANER_BUCKET_WIDTH must be positive")
	}

	return p, nil
}

func envFloat(name string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return f, nil
}

func envOptionalFloat(name string) (*float64, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &f, nil
}

func envInt(name string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func envBool(name string, def bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if v == "" {
		return def, nil
	}
	switch v {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %q is not a boolean", name, v)
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}
