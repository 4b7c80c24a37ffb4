// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Ingest      IngestConfig
	Dedup       DedupConfig
	Anomaly     AnomalyConfig
	Quality     QualityConfig
	Retention   RetentionConfig
	Twitter     TwitterConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// IngestConfig holds ingestion pipeline configuration
type IngestConfig struct {
	BatchChunkSize int
	BulkBatchSize  int
	EventsTopic    string
}

// DedupConfig holds duplicate detection configuration
type DedupConfig struct {
	SimilarityThreshold float64
	CacheMaxAge         time.Duration
	CacheSweepInterval  time.Duration
	MaxCandidates       int
}

// AnomalyConfig holds anomaly detection thresholds. The coordination weights
// are empirical and tunable, not fixed truth.
type AnomalyConfig struct {
	VelocityMultiplier    float64
	EngagementRatio       float64
	ViralityThreshold     float64
	CredibilityFloor      float64
	CoordinationThreshold float64
	OffPeakBonus          float64
	RepetitionWeight      float64
	LowDiversityBonus     float64
}

// QualityConfig holds quality scoring weights and the acceptance floor
type QualityConfig struct {
	BaseScore         float64
	MinScore          float64
	TitleBonus        float64
	TitlePenalty      float64
	SummaryBonus      float64
	SummaryPenalty    float64
	KeywordBonus      float64
	ReliabilityWeight float64
	EntityBonus       float64
	EntityPenalty     float64
	ConfidenceWeight  float64
	CriticalPenalty   float64
}

// RetentionConfig holds retention cleanup configuration
type RetentionConfig struct {
	MaxAgeDays int
	Schedule   string
}

// TwitterConfig holds the optional Twitter source adapter configuration
type TwitterConfig struct {
	BearerToken  string
	Query        string
	PollInterval time.Duration
	MaxResults   int
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "trendwire"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Ingest: IngestConfig{
			BatchChunkSize: getEnvAsInt("INGEST_BATCH_CHUNK_SIZE", 10),
			BulkBatchSize:  getEnvAsInt("INGEST_BULK_BATCH_SIZE", 100),
			EventsTopic:    getEnv("INGEST_EVENTS_TOPIC", "record"),
		},
		Dedup: DedupConfig{
			SimilarityThreshold: getEnvAsFloat("DEDUP_SIMILARITY_THRESHOLD", 0.8),
			CacheMaxAge:         getEnvAsDuration("DEDUP_CACHE_MAX_AGE", 24*time.Hour),
			CacheSweepInterval:  getEnvAsDuration("DEDUP_CACHE_SWEEP_INTERVAL", 1*time.Hour),
			MaxCandidates:       getEnvAsInt("DEDUP_MAX_CANDIDATES", 20),
		},
		Anomaly: AnomalyConfig{
			VelocityMultiplier:    getEnvAsFloat("ANOMALY_VELOCITY_MULTIPLIER", 10.0),
			EngagementRatio:       getEnvAsFloat("ANOMALY_ENGAGEMENT_RATIO", 0.95),
			ViralityThreshold:     getEnvAsFloat("ANOMALY_VIRALITY_THRESHOLD", 0.8),
			CredibilityFloor:      getEnvAsFloat("ANOMALY_CREDIBILITY_FLOOR", 0.3),
			CoordinationThreshold: getEnvAsFloat("ANOMALY_COORDINATION_THRESHOLD", 0.7),
			OffPeakBonus:          getEnvAsFloat("ANOMALY_OFF_PEAK_BONUS", 0.3),
			RepetitionWeight:      getEnvAsFloat("ANOMALY_REPETITION_WEIGHT", 0.4),
			LowDiversityBonus:     getEnvAsFloat("ANOMALY_LOW_DIVERSITY_BONUS", 0.3),
		},
		Quality: QualityConfig{
			BaseScore:         getEnvAsFloat("QUALITY_BASE_SCORE", 0.5),
			MinScore:          getEnvAsFloat("QUALITY_MIN_SCORE", 0.3),
			TitleBonus:        getEnvAsFloat("QUALITY_TITLE_BONUS", 0.1),
			TitlePenalty:      getEnvAsFloat("QUALITY_TITLE_PENALTY", 0.15),
			SummaryBonus:      getEnvAsFloat("QUALITY_SUMMARY_BONUS", 0.1),
			SummaryPenalty:    getEnvAsFloat("QUALITY_SUMMARY_PENALTY", 0.1),
			KeywordBonus:      getEnvAsFloat("QUALITY_KEYWORD_BONUS", 0.05),
			ReliabilityWeight: getEnvAsFloat("QUALITY_RELIABILITY_WEIGHT", 0.4),
			EntityBonus:       getEnvAsFloat("QUALITY_ENTITY_BONUS", 0.1),
			EntityPenalty:     getEnvAsFloat("QUALITY_ENTITY_PENALTY", 0.05),
			ConfidenceWeight:  getEnvAsFloat("QUALITY_CONFIDENCE_WEIGHT", 0.2),
			CriticalPenalty:   getEnvAsFloat("QUALITY_CRITICAL_PENALTY", 0.3),
		},
		Retention: RetentionConfig{
			MaxAgeDays: getEnvAsInt("RETENTION_MAX_AGE_DAYS", 90),
			Schedule:   getEnv("RETENTION_SCHEDULE", "0 3 * * *"),
		},
		Twitter: TwitterConfig{
			BearerToken:  getEnv("TWITTER_BEARER_TOKEN", ""),
			Query:        getEnv("TWITTER_QUERY", "-is:retweet lang:en"),
			PollInterval: getEnvAsDuration("TWITTER_POLL_INTERVAL", 5*time.Minute),
			MaxResults:   getEnvAsInt("TWITTER_MAX_RESULTS", 50),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Ingest.BatchChunkSize <= 0 {
		return fmt.Errorf("batch chunk size must be positive")
	}
	if config.Ingest.BulkBatchSize <= 0 {
		return fmt.Errorf("bulk batch size must be positive")
	}
	if config.Dedup.SimilarityThreshold < 0 || config.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1]")
	}
	if config.Quality.MinScore < 0 || config.Quality.MinScore > 1 {
		return fmt.Errorf("quality floor must be in [0,1]")
	}
	if config.Retention.MaxAgeDays <= 0 {
		return fmt.Errorf("retention max age must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
