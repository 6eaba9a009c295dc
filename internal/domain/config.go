package domain

import "time"

// Config holds the complete mulegraph configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	// Tier determines feature availability (community vs pro backing
	// stores), mirroring the teacher's tiering without a billing concept.
	Tier Tier `json:"tier"`

	Engine     EngineConfig     `json:"engine"`
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// EngineConfig holds the tunable thresholds for C1-C7. Field names mirror
// the spec's literal constant names so operators can map a config value
// straight back to the detection rule it governs.
type EngineConfig struct {
	FanMinSpokes                int           `json:"fanMinSpokes"`
	FanWindow                   time.Duration `json:"fanWindow"`
	FanMinVolume                float64       `json:"fanMinVolume"`
	ChainMinLength              int           `json:"chainMinLength"`
	ChainMaxIntermediateTx      int           `json:"chainMaxIntermediateTx"`
	ChainAmountTolerance        float64       `json:"chainAmountTolerance"`
	RingMergeOverlapFraction    float64       `json:"ringMergeOverlapFraction"`
	SuspiciousThreshold         int           `json:"suspiciousThreshold"`
	MerchantCounterpartyMin     int           `json:"merchantCounterpartyThreshold"`
	ParallelDetectors           int           `json:"parallelDetectors"`
	CycleMinLength              int           `json:"cycleMinLength"`
	CycleMaxLength              int           `json:"cycleMaxLength"`
}

// Validate rejects configurations that would make the detectors behave
// incoherently (e.g. an empty window, a non-positive threshold).
func (c EngineConfig) Validate() error {
	switch {
	case c.FanMinSpokes < 2:
		return ErrConfigurationError
	case c.FanWindow <= 0:
		return ErrConfigurationError
	case c.ChainMinLength < 2:
		return ErrConfigurationError
	case c.CycleMinLength < 3 || c.CycleMaxLength < c.CycleMinLength:
		return ErrConfigurationError
	case c.RingMergeOverlapFraction <= 0 || c.RingMergeOverlapFraction > 1:
		return ErrConfigurationError
	case c.SuspiciousThreshold < 0 || c.SuspiciousThreshold > 100:
		return ErrConfigurationError
	case c.ParallelDetectors < 1:
		return ErrConfigurationError
	}
	return nil
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`
	WriteTimeout int    `json:"writeTimeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"`
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	TierCommunity Tier = "community"
	TierPro       Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier:
// SQLite repository, in-memory LRU cache, Go-channel event bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Engine: EngineConfig{
			FanMinSpokes:             10,
			FanWindow:                72 * time.Hour,
			FanMinVolume:             0,
			ChainMinLength:           4,
			ChainMaxIntermediateTx:   3,
			ChainAmountTolerance:     0.10,
			RingMergeOverlapFraction: 0.5,
			SuspiciousThreshold:      50,
			MerchantCounterpartyMin:  1000,
			ParallelDetectors:        3,
			CycleMinLength:           3,
			CycleMaxLength:           5,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./mulegraph.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "mulegraph",
		},
	}
}

// ProConfig returns a configuration for Pro tier: Postgres + Redis + NATS.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "mulegraph",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
