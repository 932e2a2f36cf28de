package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type EnsembleMember struct {
	Family string  `yaml:"family"`
	Weight float64 `yaml:"weight"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level            string        `yaml:"level" default:"info"`
		Format           string        `yaml:"format" default:"console"`
		Output           string        `yaml:"output" default:"stdout"`
		Collect          bool          `yaml:"collect"`
		CollectInterval  time.Duration `yaml:"collect_interval" default:"30s"`
		CollectThreshold int           `yaml:"collect_threshold" default:"100"`
	} `yaml:"logging"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		ForecastTopic string   `yaml:"forecast_topic" default:"fincast.forecasts"`
		CandlesTopic  string   `yaml:"candles_topic" default:"fincast.candles.closed"`
		LogsTopic     string   `yaml:"logs_topic" default:"fincast.logs"`
		RequiredAcks  int      `yaml:"required_acks" default:"1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"fincast-forecaster"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"fincast.candles.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
		Pipeline struct {
			MaxRPS     int `yaml:"max_rps" default:"20"`
			BufferSize int `yaml:"buffer_size" default:"512"`
		} `yaml:"pipeline"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fincast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
		Compression      string        `yaml:"compression"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"fincast"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	Features struct {
		SMAPeriods        []int   `yaml:"sma_periods" default:"[10,20,50]"`
		EMAFast           int     `yaml:"ema_fast" default:"12"`
		EMASlow           int     `yaml:"ema_slow" default:"26"`
		MACDSignal        int     `yaml:"macd_signal" default:"9"`
		RSIPeriod         int     `yaml:"rsi_period" default:"14"`
		BollingerPeriod   int     `yaml:"bollinger_period" default:"20"`
		BollingerK        float64 `yaml:"bollinger_k" default:"2"`
		VolumePeriod      int     `yaml:"volume_period" default:"20"`
		RealizedVolPeriod int     `yaml:"realized_vol_period" default:"20"`
		Lags              int     `yaml:"lags" default:"5"`
		ChangeShort       int     `yaml:"change_short" default:"1"`
		ChangeMedium      int     `yaml:"change_medium" default:"7"`
		ChangeLong        int     `yaml:"change_long" default:"30"`
	} `yaml:"features"`
	Forecast struct {
		DefaultSteps int           `yaml:"default_steps" default:"5"`
		MaxSteps     int           `yaml:"max_steps" default:"30"`
		Mode         string        `yaml:"mode" default:"iterative"`
		History      int           `yaml:"history" default:"300"`
		FlatEpsilon  float64       `yaml:"flat_epsilon"`
		Drivers      int           `yaml:"drivers" default:"5"`
		CacheTTL     time.Duration `yaml:"cache_ttl" default:"1m"`
		Timeout      time.Duration `yaml:"timeout" default:"10s"`
		RateLimit    struct {
			Capacity     int     `yaml:"capacity" default:"20"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"5"`
		} `yaml:"rate_limit"`
		Confidence struct {
			Strategy    string  `yaml:"strategy" default:"time_decay"`
			High        float64 `yaml:"high" default:"0.85"`
			Low         float64 `yaml:"low" default:"0.60"`
			Sensitivity float64 `yaml:"sensitivity" default:"1000"`
			Epsilon     float64 `yaml:"epsilon" default:"0.001"`
		} `yaml:"confidence"`
	} `yaml:"forecast"`
	Ensemble struct {
		Members []EnsembleMember `yaml:"members"`
	} `yaml:"ensemble"`
	Models struct {
		Dir      string        `yaml:"dir" default:"./models"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"10m"`
	} `yaml:"models"`
	Training struct {
		Symbols     []string      `yaml:"symbols" default:"[\"BTCUSDT\",\"ETHUSDT\"]"`
		Timeframes  []string      `yaml:"timeframes" default:"[\"1h\"]"`
		History     int           `yaml:"history" default:"5000"`
		Timeout     time.Duration `yaml:"timeout" default:"30m"`
		Holdout     float64       `yaml:"holdout" default:"0.2"`
		Horizon     int           `yaml:"horizon" default:"5"`
		Families    []string      `yaml:"families" default:"[\"linear\",\"gbt\"]"`
		RidgeLambda float64       `yaml:"ridge_lambda" default:"1"`
		Boosted     struct {
			Rounds       int     `yaml:"rounds" default:"60"`
			LearningRate float64 `yaml:"learning_rate" default:"0.1"`
			MaxDepth     int     `yaml:"max_depth" default:"3"`
			MinLeaf      int     `yaml:"min_leaf" default:"20"`
			MaxSamples   int     `yaml:"max_samples" default:"5000"`
		} `yaml:"boosted"`
		Forest struct {
			Trees      int   `yaml:"trees" default:"30"`
			MaxDepth   int   `yaml:"max_depth" default:"6"`
			MinLeaf    int   `yaml:"min_leaf" default:"10"`
			MaxSamples int   `yaml:"max_samples" default:"3000"`
			Seed       int64 `yaml:"seed" default:"17"`
		} `yaml:"forest"`
		Recurrent struct {
			Reservoir      int     `yaml:"reservoir" default:"32"`
			SpectralRadius float64 `yaml:"spectral_radius" default:"0.9"`
			Density        float64 `yaml:"density" default:"0.2"`
			InputScale     float64 `yaml:"input_scale" default:"10"`
			Seed           int64   `yaml:"seed" default:"29"`
		} `yaml:"recurrent"`
		Queue struct {
			Enabled    bool          `yaml:"enabled"`
			Mode       string        `yaml:"mode" default:"both"`
			Workers    int           `yaml:"workers" default:"1"`
			MaxRetries int           `yaml:"max_retries" default:"2"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"1m"`
		} `yaml:"queue"`
	} `yaml:"training"`
	Analytics struct {
		PythonServiceURL string        `yaml:"python_service_url"`
		Timeout          time.Duration `yaml:"timeout" default:"5s"`
		MaxRetries       int           `yaml:"max_retries" default:"2"`
	} `yaml:"analytics"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		Exporter    string  `yaml:"exporter" default:"stdout"`
		Endpoint    string  `yaml:"endpoint" default:"localhost:4318"`
		ServiceName string  `yaml:"service_name" default:"fincast"`
		SampleRatio float64 `yaml:"sample_ratio" default:"1"`
	} `yaml:"tracing"`
}

// Default returns a configuration populated from struct defaults only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	c.fillDerived()
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.fillDerived()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// An empty path starts from defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FINCAST_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("TRAIN_SYMBOLS"); v != "" {
		c.Training.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("PYTHON_SERVICE_URL"); v != "" {
		c.Analytics.PythonServiceURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) fillDerived() {
	if len(c.Ensemble.Members) == 0 {
		c.Ensemble.Members = []EnsembleMember{{Family: "linear", Weight: 1}}
	}
}

var (
	validTimeframes = map[string]bool{"1h": true, "4h": true, "1d": true, "1w": true, "1M": true}
	validFamilies   = map[string]bool{"linear": true, "gbt": true, "forest": true, "rnn": true, "direct_linear": true, "remote": true}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	switch strings.ToLower(c.ClickHouse.Compression) {
	case "", "lz4", "zstd", "gzip", "none":
	default:
		return fmt.Errorf("clickhouse.compression must be lz4, zstd, gzip or none, got '%s'", c.ClickHouse.Compression)
	}
	if c.ClickHouse.MaxIdleConns > c.ClickHouse.MaxOpenConns {
		return fmt.Errorf("clickhouse.max_idle_conns must not exceed max_open_conns")
	}

	f := c.Forecast
	if f.MaxSteps < 1 {
		return fmt.Errorf("forecast.max_steps must be >= 1")
	}
	if f.DefaultSteps < 1 || f.DefaultSteps > f.MaxSteps {
		return fmt.Errorf("forecast.default_steps must be in [1, %d], got %d", f.MaxSteps, f.DefaultSteps)
	}
	if f.Mode != "iterative" && f.Mode != "direct" {
		return fmt.Errorf("forecast.mode must be 'iterative' or 'direct', got '%s'", f.Mode)
	}
	if f.Confidence.Strategy != "time_decay" && f.Confidence.Strategy != "ensemble_variance" {
		return fmt.Errorf("forecast.confidence.strategy must be 'time_decay' or 'ensemble_variance', got '%s'", f.Confidence.Strategy)
	}
	if f.Confidence.Low < 0 || f.Confidence.High > 1 || f.Confidence.Low > f.Confidence.High {
		return fmt.Errorf("forecast.confidence requires 0 <= low <= high <= 1")
	}
	if f.FlatEpsilon < 0 {
		return fmt.Errorf("forecast.flat_epsilon must be >= 0")
	}

	sum := 0.0
	for _, m := range c.Ensemble.Members {
		if !validFamilies[m.Family] {
			return fmt.Errorf("ensemble.members: unknown family '%s'", m.Family)
		}
		if m.Weight < 0 {
			return fmt.Errorf("ensemble.members: weight for '%s' must be >= 0", m.Family)
		}
		sum += m.Weight
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("ensemble.members: weights must sum to 1, got %v", sum)
	}

	for _, tf := range c.Training.Timeframes {
		if !validTimeframes[tf] {
			return fmt.Errorf("training.timeframes: unsupported timeframe '%s'", tf)
		}
	}
	for _, fam := range c.Training.Families {
		if !validFamilies[fam] || fam == "remote" {
			return fmt.Errorf("training.families: cannot train family '%s'", fam)
		}
	}
	if c.Training.Holdout < 0 || c.Training.Holdout >= 1 {
		return fmt.Errorf("training.holdout must be in [0, 1)")
	}
	if c.Training.Horizon < 1 {
		return fmt.Errorf("training.horizon must be >= 1")
	}
	switch c.Training.Queue.Mode {
	case "both", "producer", "consumer":
	default:
		return fmt.Errorf("training.queue.mode must be 'both', 'producer' or 'consumer', got '%s'", c.Training.Queue.Mode)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter != "stdout" && c.Tracing.Exporter != "otlp" {
		return fmt.Errorf("tracing.exporter must be 'stdout' or 'otlp', got '%s'", c.Tracing.Exporter)
	}
	return nil
}
