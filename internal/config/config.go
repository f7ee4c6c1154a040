package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Phase names used for per-phase worker and batch settings.
const (
	PhaseLink         = "link"
	PhaseParcel       = "parcel"
	PhaseAssessment   = "assessment"
	PhaseHousing      = "housing"
	PhaseTransactions = "transactions"
	PhaseLiens        = "liens"
	PhaseScore        = "score"
)

// Phases lists every phase in execution order.
var Phases = []string{
	PhaseLink, PhaseParcel, PhaseAssessment, PhaseHousing,
	PhaseTransactions, PhaseLiens, PhaseScore,
}

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Pipeline PipelineConfig
	Sources  SourcesConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Scoring  ScoringConfig
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// PhaseConfig sizes one pipeline phase.
type PhaseConfig struct {
	Workers   int
	BatchSize int
}

// PipelineConfig controls scheduling and pacing of enrichment runs.
type PipelineConfig struct {
	Phases           map[string]PhaseConfig
	RefreshWindow    time.Duration
	EmptyRetryWindow time.Duration
	CallDelay        time.Duration
	CallTimeout      time.Duration
	Schedule         time.Duration
	Refresh          bool
}

// Phase returns the sizing of the named phase.
func (p PipelineConfig) Phase(name string) PhaseConfig {
	return p.Phases[name]
}

// SourcesConfig holds the open-data endpoint and dataset identifiers.
type SourcesConfig struct {
	BaseURL             string
	AppToken            string
	PlutoDataset        string
	AssessmentDataset   string
	HPDRegistrations    string
	HPDContacts         string
	HPDViolations       string
	HPDComplaints       string
	TaxLienDataset      string
	ECBDataset          string
	ACRISLegalsDataset  string
	ACRISMasterDataset  string
	ACRISPartiesDataset string
	MaxRetries          int
}

// RedisConfig configures the run lock. An empty Addr disables locking.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// AMQPConfig configures run-summary publishing. An empty URL disables it.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// ScoringConfig holds the lead-score weights.
type ScoringConfig struct {
	FlipperBonus       int
	FlipScoreMax       int
	CashBonus          int
	HeavyLeverageBonus int
	RecencyMax         int
	SellerAddressBonus int
	LenderInfoBonus    int
}

var phaseDefaults = map[string]PhaseConfig{
	PhaseLink:         {Workers: 1, BatchSize: 1000},
	PhaseParcel:       {Workers: 5, BatchSize: 500},
	PhaseAssessment:   {Workers: 5, BatchSize: 500},
	PhaseHousing:      {Workers: 3, BatchSize: 200},
	PhaseTransactions: {Workers: 3, BatchSize: 100},
	PhaseLiens:        {Workers: 5, BatchSize: 500},
	PhaseScore:        {Workers: 10, BatchSize: 1000},
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "permits")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 20)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	v.SetDefault("REFRESH_WINDOW", "720h")
	v.SetDefault("EMPTY_RETRY_WINDOW", "24h")
	v.SetDefault("CALL_DELAY", "200ms")
	v.SetDefault("CALL_TIMEOUT", "15s")
	v.SetDefault("SCHEDULE", "0s")
	v.SetDefault("REFRESH_MODE", false)
	for name, d := range phaseDefaults {
		key := strings.ToUpper(name)
		v.SetDefault(key+"_WORKERS", d.Workers)
		v.SetDefault(key+"_BATCH_SIZE", d.BatchSize)
	}

	v.SetDefault("SOCRATA_BASE_URL", "https://data.cityofnewyork.us")
	v.SetDefault("SOCRATA_MAX_RETRIES", 2)
	v.SetDefault("PLUTO_DATASET", "64uk-42ks")
	v.SetDefault("ASSESSMENT_DATASET", "8y4t-faws")
	v.SetDefault("HPD_REGISTRATIONS_DATASET", "tesw-yqqr")
	v.SetDefault("HPD_CONTACTS_DATASET", "feu5-w2e2")
	v.SetDefault("HPD_VIOLATIONS_DATASET", "wvxf-dwi5")
	v.SetDefault("HPD_COMPLAINTS_DATASET", "ygpa-z7cr")
	v.SetDefault("TAX_LIEN_DATASET", "9rz4-mjek")
	v.SetDefault("ECB_DATASET", "6bgk-3dad")
	v.SetDefault("ACRIS_LEGALS_DATASET", "8h5j-fqxa")
	v.SetDefault("ACRIS_MASTER_DATASET", "bnx9-e6tj")
	v.SetDefault("ACRIS_PARTIES_DATASET", "636b-3b5g")

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOCK_TTL", "6h")
	v.SetDefault("AMQP_EXCHANGE", "enrichment")
	v.SetDefault("AMQP_ROUTING_KEY", "enrichment.run.completed")

	v.SetDefault("SCORE_FLIPPER_BONUS", 20)
	v.SetDefault("SCORE_FLIP_MAX", 20)
	v.SetDefault("SCORE_CASH_BONUS", 30)
	v.SetDefault("SCORE_LEVERAGE_BONUS", 10)
	v.SetDefault("SCORE_RECENCY_MAX", 20)
	v.SetDefault("SCORE_SELLER_ADDRESS_BONUS", 15)
	v.SetDefault("SCORE_LENDER_BONUS", 5)

	v.AutomaticEnv()

	phases := make(map[string]PhaseConfig, len(Phases))
	for _, name := range Phases {
		key := strings.ToUpper(name)
		phases[name] = PhaseConfig{
			Workers:   v.GetInt(key + "_WORKERS"),
			BatchSize: v.GetInt(key + "_BATCH_SIZE"),
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		CORS: CORSConfig{
			Origins: parseList(v.GetString("CORS_ORIGINS")),
		},
		Pipeline: PipelineConfig{
			Phases:           phases,
			RefreshWindow:    v.GetDuration("REFRESH_WINDOW"),
			EmptyRetryWindow: v.GetDuration("EMPTY_RETRY_WINDOW"),
			CallDelay:        v.GetDuration("CALL_DELAY"),
			CallTimeout:      v.GetDuration("CALL_TIMEOUT"),
			Schedule:         v.GetDuration("SCHEDULE"),
			Refresh:          v.GetBool("REFRESH_MODE"),
		},
		Sources: SourcesConfig{
			BaseURL:             v.GetString("SOCRATA_BASE_URL"),
			AppToken:            v.GetString("SOCRATA_APP_TOKEN"),
			MaxRetries:          v.GetInt("SOCRATA_MAX_RETRIES"),
			PlutoDataset:        v.GetString("PLUTO_DATASET"),
			AssessmentDataset:   v.GetString("ASSESSMENT_DATASET"),
			HPDRegistrations:    v.GetString("HPD_REGISTRATIONS_DATASET"),
			HPDContacts:         v.GetString("HPD_CONTACTS_DATASET"),
			HPDViolations:       v.GetString("HPD_VIOLATIONS_DATASET"),
			HPDComplaints:       v.GetString("HPD_COMPLAINTS_DATASET"),
			TaxLienDataset:      v.GetString("TAX_LIEN_DATASET"),
			ECBDataset:          v.GetString("ECB_DATASET"),
			ACRISLegalsDataset:  v.GetString("ACRIS_LEGALS_DATASET"),
			ACRISMasterDataset:  v.GetString("ACRIS_MASTER_DATASET"),
			ACRISPartiesDataset: v.GetString("ACRIS_PARTIES_DATASET"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			LockTTL:  v.GetDuration("LOCK_TTL"),
		},
		AMQP: AMQPConfig{
			URL:        v.GetString("AMQP_URL"),
			Exchange:   v.GetString("AMQP_EXCHANGE"),
			RoutingKey: v.GetString("AMQP_ROUTING_KEY"),
		},
		Scoring: ScoringConfig{
			FlipperBonus:       v.GetInt("SCORE_FLIPPER_BONUS"),
			FlipScoreMax:       v.GetInt("SCORE_FLIP_MAX"),
			CashBonus:          v.GetInt("SCORE_CASH_BONUS"),
			HeavyLeverageBonus: v.GetInt("SCORE_LEVERAGE_BONUS"),
			RecencyMax:         v.GetInt("SCORE_RECENCY_MAX"),
			SellerAddressBonus: v.GetInt("SCORE_SELLER_ADDRESS_BONUS"),
			LenderInfoBonus:    v.GetInt("SCORE_LENDER_BONUS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if c.Database.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if c.Database.PoolMin > c.Database.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}

	if err := c.Pipeline.validate(c.Database.PoolMax); err != nil {
		return err
	}

	if c.Sources.BaseURL == "" {
		return fmt.Errorf("SOCRATA_BASE_URL is required")
	}
	if c.Sources.MaxRetries < 0 {
		return fmt.Errorf("SOCRATA_MAX_RETRIES must be non-negative")
	}

	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive when REDIS_ADDR is set")
	}
	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		return fmt.Errorf("AMQP_EXCHANGE is required when AMQP_URL is set")
	}

	return nil
}

func (p PipelineConfig) validate(poolMax int) error {
	if p.RefreshWindow <= 0 {
		return fmt.Errorf("REFRESH_WINDOW must be positive")
	}
	if p.EmptyRetryWindow < 0 {
		return fmt.Errorf("EMPTY_RETRY_WINDOW must be non-negative")
	}
	if p.CallDelay < 0 {
		return fmt.Errorf("CALL_DELAY must be non-negative")
	}
	if p.CallTimeout <= 0 {
		return fmt.Errorf("CALL_TIMEOUT must be positive")
	}
	if p.Schedule < 0 {
		return fmt.Errorf("SCHEDULE must be non-negative")
	}

	// parcel, assessment and housing run side by side and share the pool.
	concurrent := 0
	for _, name := range Phases {
		phase, ok := p.Phases[name]
		if !ok {
			return fmt.Errorf("missing configuration for phase %s", name)
		}
		key := strings.ToUpper(name)
		if phase.Workers < 1 {
			return fmt.Errorf("%s_WORKERS must be at least 1", key)
		}
		if phase.BatchSize < 1 {
			return fmt.Errorf("%s_BATCH_SIZE must be at least 1", key)
		}
		if phase.Workers >= poolMax {
			return fmt.Errorf("%s_WORKERS must be below DB_POOL_MAX (%d)", key, poolMax)
		}
		if name == PhaseParcel || name == PhaseAssessment || name == PhaseHousing {
			concurrent += phase.Workers
		}
	}
	if concurrent >= poolMax {
		return fmt.Errorf("combined PARCEL/ASSESSMENT/HOUSING workers (%d) must be below DB_POOL_MAX (%d)", concurrent, poolMax)
	}

	return nil
}

// parseList splits a comma-separated string into trimmed, non-empty parts.
func parseList(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
