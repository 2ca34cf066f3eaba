package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TTL is a cache budget: fresh until Hard, servable stale until Stale.
type TTL struct {
	Hard  time.Duration `yaml:"hard" validate:"gt=0"`
	Stale time.Duration `yaml:"stale" validate:"gtefield=Hard"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"20" validate:"gte=0"`
			Burst int     `yaml:"burst" default:"40" validate:"gte=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name" default:"quotehub"`
		Exporter    string  `yaml:"exporter" default:"stdout" validate:"oneof=stdout none"`
		SampleRatio float64 `yaml:"sample_ratio" default:"1" validate:"gte=0,lte=1"`
	} `yaml:"tracing"`
	Providers struct {
		Finnhub struct {
			Enabled           bool          `yaml:"enabled" default:"true"`
			APIKey            string        `yaml:"api_key" validate:"required_if=Enabled true"`
			BaseURL           string        `yaml:"base_url" default:"https://finnhub.io/api/v1" validate:"url"`
			Priority          int           `yaml:"priority" default:"2"`
			RequestsPerMinute int           `yaml:"requests_per_minute" default:"60" validate:"gte=0"`
			Timeout           time.Duration `yaml:"timeout" default:"5s"`
			Stream            struct {
				Enabled      bool          `yaml:"enabled"`
				WebSocketURL string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
				Symbols      []string      `yaml:"symbols"`
				PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
				MaxTradeAge  time.Duration `yaml:"max_trade_age" default:"30s"`
			} `yaml:"stream"`
		} `yaml:"finnhub"`
		Yahoo struct {
			Enabled           bool          `yaml:"enabled" default:"true"`
			BaseURL           string        `yaml:"base_url" default:"https://query1.finance.yahoo.com" validate:"url"`
			UserAgent         string        `yaml:"user_agent"`
			StatusSymbol      string        `yaml:"status_symbol" default:"SPY"`
			Priority          int           `yaml:"priority" default:"1"`
			RequestsPerMinute int           `yaml:"requests_per_minute" default:"120" validate:"gte=0"`
			Timeout           time.Duration `yaml:"timeout" default:"5s"`
		} `yaml:"yahoo"`
	} `yaml:"providers"`
	Breaker struct {
		FailureThreshold float64       `yaml:"failure_threshold" default:"5" validate:"gt=0"`
		VolumeThreshold  int           `yaml:"volume_threshold" default:"10" validate:"gt=0"`
		ResetTimeout     time.Duration `yaml:"reset_timeout" default:"30s"`
		Window           time.Duration `yaml:"window" default:"60s"`
		RateLimitWeight  float64       `yaml:"rate_limit_weight" default:"0.5" validate:"gt=0,lte=1"`
		EventBuffer      int           `yaml:"event_buffer" default:"256"`
	} `yaml:"breaker"`
	Pipeline struct {
		StageTimeout   time.Duration `yaml:"stage_timeout" default:"3s"`
		MaxRetries     int           `yaml:"max_retries" default:"2" validate:"gte=0,lte=10"`
		MaxParallelism int           `yaml:"max_parallelism" default:"8" validate:"gt=0"`
		FetchTimeout   time.Duration `yaml:"fetch_timeout" default:"15s"`
		Retry          struct {
			Base       time.Duration `yaml:"base" default:"200ms"`
			Multiplier float64       `yaml:"multiplier" default:"2" validate:"gte=1"`
			Max        time.Duration `yaml:"max" default:"5s"`
			Jitter     bool          `yaml:"jitter" default:"true"`
		} `yaml:"retry"`
	} `yaml:"pipeline"`
	Cache struct {
		Capacity int `yaml:"capacity" default:"4096" validate:"gt=0"`
		TTL      struct {
			Regular  TTL `yaml:"regular"`
			Extended TTL `yaml:"extended"`
			Closed   TTL `yaml:"closed"`
			Metadata TTL `yaml:"metadata"`
		} `yaml:"ttl"`
	} `yaml:"cache"`
	Calendar struct {
		Timezone       string        `yaml:"timezone" default:"America/New_York" validate:"timezone"`
		SessionTTL     time.Duration `yaml:"session_ttl" default:"30s" validate:"lte=60s"`
		SignalTimeout  time.Duration `yaml:"signal_timeout" default:"2s"`
		SignalProvider string        `yaml:"signal_provider" default:"finnhub" validate:"omitempty,oneof=finnhub yahoo"`
	} `yaml:"calendar"`
	Warmup struct {
		Enabled  bool     `yaml:"enabled"`
		Schedule string   `yaml:"schedule" default:"25 9 * * 1-5"`
		Symbols  []string `yaml:"symbols" validate:"required_if=Enabled true"`
		Queue    struct {
			Enabled    bool          `yaml:"enabled"`
			Workers    int           `yaml:"workers" default:"2" validate:"gt=0"`
			RetryLimit int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		} `yaml:"queue"`
	} `yaml:"warmup"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"quotehub"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled          bool     `yaml:"enabled"`
		Brokers          []string `yaml:"brokers" validate:"required_if=Enabled true"`
		BreakerTopic     string   `yaml:"breaker_topic" default:"provider-breaker-events"`
		CorrectionsTopic string   `yaml:"corrections_topic" default:"trade-corrections"`
		LogTopic         string   `yaml:"log_topic"`
		RequiredAcks     int      `yaml:"required_acks" default:"1"`
		Compression      string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer         struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"quotehub"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"quotehub"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		BatchSize        int           `yaml:"batch_size" default:"500" validate:"gt=0"`
		FlushInterval    time.Duration `yaml:"flush_interval" default:"5s"`
	} `yaml:"clickhouse"`
}

var validate = validator.New()

// Default returns a config with every default applied and nothing read.
func Default() (*Config, error) {
	var c Config
	if err := setDefaults(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(c *Config) error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	t := &c.Cache.TTL
	if t.Regular == (TTL{}) {
		t.Regular = TTL{Hard: 5 * time.Second, Stale: 10 * time.Second}
	}
	if t.Extended == (TTL{}) {
		t.Extended = TTL{Hard: 15 * time.Second, Stale: 30 * time.Second}
	}
	if t.Closed == (TTL{}) {
		t.Closed = TTL{Hard: 15 * time.Minute, Stale: time.Hour}
	}
	if t.Metadata == (TTL{}) {
		t.Metadata = TTL{Hard: 24 * time.Hour, Stale: 7 * 24 * time.Hour}
	}
	return nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Defaults go in first so an explicit false or zero in the file survives.
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Providers.Finnhub.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Warmup.Symbols = splitList(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if !c.Providers.Finnhub.Enabled && !c.Providers.Yahoo.Enabled {
		return fmt.Errorf("providers: at least one provider must be enabled")
	}
	if c.Providers.Finnhub.Stream.Enabled && !c.Providers.Finnhub.Enabled {
		return fmt.Errorf("providers.finnhub.stream requires the finnhub provider")
	}
	if c.Warmup.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("warmup.queue requires redis")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
