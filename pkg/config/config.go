package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
		// Token bucket per unit for POST /decisions/evaluate.
		EvaluateLimit struct {
			Burst     float64 `yaml:"burst" default:"10" validate:"gte=1"`
			PerSecond float64 `yaml:"per_second" default:"2" validate:"gt=0"`
		} `yaml:"evaluate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
		Format    string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic" default:"staffpulse.logs"`
			TimeInterval   time.Duration `yaml:"time_interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
	Alerting AlertingConfig `yaml:"alerting"`
	Ledger   struct {
		Backend string `yaml:"backend" default:"memory" validate:"oneof=memory clickhouse"`
		Table   string `yaml:"table" default:"decision_records"`

		// MaxRows caps the memory backend; a full ledger rejects appends (0 = unbounded).
		MaxRows int `yaml:"max_rows" validate:"gte=0"`
	} `yaml:"ledger"`
	State struct {
		Backend  string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		LeaseTTL time.Duration `yaml:"lease_ttl" default:"5s"`
	} `yaml:"state"`
	// AuditRetry re-appends decisions the ledger rejected. It shares the state
	// backend: a Redis queue when state lives in Redis, in-process otherwise.
	AuditRetry struct {
		Enabled      bool          `yaml:"enabled" default:"true"`
		Workers      int           `yaml:"workers" default:"1" validate:"gte=1"`
		RetryLimit   int           `yaml:"retry_limit" default:"10" validate:"gte=0"`
		RetryDelay   time.Duration `yaml:"retry_delay" default:"30s"`
		PollInterval time.Duration `yaml:"poll_interval" default:"5s"`
	} `yaml:"audit_retry"`
	Kafka struct {
		Enabled        bool     `yaml:"enabled"`
		Brokers        []string `yaml:"brokers"`
		SnapshotsTopic string   `yaml:"snapshots_topic" default:"staffpulse.snapshots"`
		DecisionsTopic string   `yaml:"decisions_topic" default:"staffpulse.decisions"`
		RequiredAcks   int      `yaml:"required_acks" default:"-1"`
		Compression    string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"staffpulse-engine"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"2"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"staffpulse.snapshots.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"staffpulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"staffpulse"`
	} `yaml:"redis"`
}

// EngineConfig drives scoring, classification and staffing advice.
// Role-keyed maps use the lower-case role name (doctor, nurse, ...).
type EngineConfig struct {
	Version       string             `yaml:"version" default:"1.0.0" validate:"required"`
	Weights       Weights            `yaml:"weights"`
	Coverage      map[string]float64 `yaml:"coverage" default:"{\"doctor\":10,\"nurse\":4,\"sister\":8,\"technician\":15}"`
	BaselineStaff map[string]int     `yaml:"baseline_staff" default:"{\"doctor\":20,\"nurse\":60,\"sister\":10,\"technician\":12}"`
	Thresholds    struct {
		Proactive Threshold `yaml:"proactive" default:"{\"enter\":0.4,\"exit\":0.3}"`
		Emergency Threshold `yaml:"emergency" default:"{\"enter\":0.65,\"exit\":0.5}"`
	} `yaml:"thresholds"`
	MinDwell int `yaml:"min_dwell" default:"3" validate:"gte=0"`
	Staffing struct {
		ProactiveTargetRatio float64        `yaml:"proactive_target_ratio" default:"1.1" validate:"gt=0"`
		EmergencyTargetRatio float64        `yaml:"emergency_target_ratio" default:"1.3" validate:"gt=0"`
		Surge                map[string]int `yaml:"surge" default:"{\"doctor\":2,\"nurse\":4}"`
		ApprovalRequired     []string       `yaml:"approval_required" default:"[\"doctor\"]"`
	} `yaml:"staffing"`
	Model struct {
		Enabled    bool          `yaml:"enabled"`
		URL        string        `yaml:"url"`
		BlendAlpha float64       `yaml:"blend_alpha" default:"0.5" validate:"gte=0,lte=1"`
		Timeout    time.Duration `yaml:"timeout" default:"800ms" validate:"gt=0"`
	} `yaml:"model"`
}

// Weights of the risk components; they must sum to 1.
type Weights struct {
	Occupancy float64 `yaml:"occupancy" json:"occupancy" default:"0.45" validate:"gte=0,lte=1"`
	Load      float64 `yaml:"load" json:"load" default:"0.2" validate:"gte=0,lte=1"`
	Shortage  float64 `yaml:"shortage" json:"shortage" default:"0.25" validate:"gte=0,lte=1"`
	External  float64 `yaml:"external" json:"external" default:"0.1" validate:"gte=0,lte=1"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Occupancy + w.Load + w.Shortage + w.External
}

// Threshold is a hysteresis pair: Enter to escalate into a state, Exit to leave it.
type Threshold struct {
	Enter float64 `yaml:"enter" json:"enter" validate:"gte=0,lte=1"`
	Exit  float64 `yaml:"exit" json:"exit" validate:"gte=0,lte=1"`
}

type AlertingConfig struct {
	Enabled    bool          `yaml:"enabled" default:"true"`
	Channels   []string      `yaml:"channels"`
	Recipients []string      `yaml:"recipients" default:"[\"on-call-doctors\",\"nursing-supervisor\"]"`
	Timeout    time.Duration `yaml:"timeout" default:"5s" validate:"gt=0"`
}

var validate = validator.New()

// Default returns a configuration populated only from default tags.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse builds a configuration from YAML bytes: defaults first, then the document, then validation.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("MODEL_URL"); v != "" {
		c.Engine.Model.URL = v
		c.Engine.Model.Enabled = true
	}
	if v := os.Getenv("ALERT_CHANNELS"); v != "" {
		c.Alerting.Channels = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the cross-field rules of the engine.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Engine.Model.Enabled && c.Engine.Model.URL == "" {
		return errors.New("engine.model.url is required when the model is enabled")
	}
	return nil
}

// Validate enforces weight normalisation, threshold ordering and non-negative staffing tables.
func (e *EngineConfig) Validate() error {
	if math.Abs(e.Weights.Sum()-1) > 1e-6 {
		return fmt.Errorf("engine.weights must sum to 1, got %.4f", e.Weights.Sum())
	}
	p, em := e.Thresholds.Proactive, e.Thresholds.Emergency
	if p.Exit >= p.Enter {
		return fmt.Errorf("engine.thresholds.proactive: exit (%.2f) must be below enter (%.2f)", p.Exit, p.Enter)
	}
	if em.Exit >= em.Enter {
		return fmt.Errorf("engine.thresholds.emergency: exit (%.2f) must be below enter (%.2f)", em.Exit, em.Enter)
	}
	if p.Enter >= em.Enter {
		return fmt.Errorf("engine.thresholds: proactive enter (%.2f) must be below emergency enter (%.2f)", p.Enter, em.Enter)
	}
	if p.Exit >= em.Exit {
		return fmt.Errorf("engine.thresholds: proactive exit (%.2f) must be below emergency exit (%.2f)", p.Exit, em.Exit)
	}
	if len(e.BaselineStaff) == 0 {
		return errors.New("engine.baseline_staff cannot be empty")
	}
	for role, n := range e.BaselineStaff {
		if n < 0 {
			return fmt.Errorf("engine.baseline_staff.%s must be >= 0", role)
		}
	}
	for role, f := range e.Coverage {
		if f < 0 {
			return fmt.Errorf("engine.coverage.%s must be >= 0", role)
		}
	}
	for role, n := range e.Staffing.Surge {
		if n < 0 {
			return fmt.Errorf("engine.staffing.surge.%s must be >= 0", role)
		}
	}
	return nil
}
