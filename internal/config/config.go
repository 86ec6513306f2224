package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Scoring    ScoringConfig
	Resolution ResolutionConfig
	Pattern    PatternConfig
	Retention  RetentionConfig
	Persist    PersistConfig
	JWT        JWTConfig
	WebSocket  WebSocketConfig
	CORS       CORSConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// ScoringConfig is tuning policy, not algorithm: weights and thresholds
// may be adjusted per deployment as long as thresholds stay monotonic.
type ScoringConfig struct {
	BaseScore               int
	CriticalFieldWeight     int
	RelationshipFieldWeight int
	TypeMismatchWeight      int
	StaleTimestampWeight    int
	StaleTimestampGap       time.Duration
	MediumThreshold         int
	HighThreshold           int
	CriticalThreshold       int
	CriticalFields          []string
	RelationshipFields      []string
}

type ResolutionConfig struct {
	MergeWindow      time.Duration
	SystemFields     []string
	AuditOwnerFields []string
	FreeTextFields   []string
	WorkflowFields   []string
	VersionField     string
}

type PatternConfig struct {
	Window    time.Duration
	Threshold int
}

type RetentionConfig struct {
	MaxResolvedAgeDays int
	SweepInterval      time.Duration
}

type PersistConfig struct {
	Retries int
	Backoff time.Duration
}

type JWTConfig struct {
	Enabled    bool
	Secret     string
	Expiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := time.ParseDuration(getEnv("JWT_EXPIRATION", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "conflicts"),
		},
		Scoring: ScoringConfig{
			BaseScore:               getEnvAsInt("SCORE_BASE", 1),
			CriticalFieldWeight:     getEnvAsInt("SCORE_CRITICAL_FIELD_WEIGHT", 3),
			RelationshipFieldWeight: getEnvAsInt("SCORE_RELATIONSHIP_FIELD_WEIGHT", 2),
			TypeMismatchWeight:      getEnvAsInt("SCORE_TYPE_MISMATCH_WEIGHT", 5),
			StaleTimestampWeight:    getEnvAsInt("SCORE_STALE_TIMESTAMP_WEIGHT", 2),
			StaleTimestampGap:       getEnvAsDuration("SCORE_STALE_TIMESTAMP_GAP", time.Hour),
			MediumThreshold:         getEnvAsInt("SCORE_MEDIUM_THRESHOLD", 2),
			HighThreshold:           getEnvAsInt("SCORE_HIGH_THRESHOLD", 5),
			CriticalThreshold:       getEnvAsInt("SCORE_CRITICAL_THRESHOLD", 8),
			CriticalFields: getEnvAsSlice("SCORE_CRITICAL_FIELDS",
				"status,amount,priority,assignee,assigned_to,due_date,deadline"),
			RelationshipFields: getEnvAsSlice("SCORE_RELATIONSHIP_FIELDS",
				"client_id,task_id,ticket_id,parent_id,project_id"),
		},
		Resolution: ResolutionConfig{
			MergeWindow: getEnvAsDuration("RESOLUTION_MERGE_WINDOW", 60*time.Second),
			SystemFields: getEnvAsSlice("RESOLUTION_SYSTEM_FIELDS",
				"created_at,updated_at,modified_at,change_tag"),
			AuditOwnerFields: getEnvAsSlice("RESOLUTION_AUDIT_OWNER_FIELDS",
				"modified_by,last_modified_by"),
			FreeTextFields: getEnvAsSlice("RESOLUTION_FREE_TEXT_FIELDS",
				"title,description,notes,comment"),
			WorkflowFields: getEnvAsSlice("RESOLUTION_WORKFLOW_FIELDS",
				"status,priority"),
			VersionField: getEnv("RESOLUTION_VERSION_FIELD", "version"),
		},
		Pattern: PatternConfig{
			Window:    getEnvAsDuration("PATTERN_WINDOW", time.Hour),
			Threshold: getEnvAsInt("PATTERN_THRESHOLD", 5),
		},
		Retention: RetentionConfig{
			MaxResolvedAgeDays: getEnvAsInt("RETENTION_MAX_RESOLVED_AGE_DAYS", 30),
			SweepInterval:      getEnvAsDuration("RETENTION_SWEEP_INTERVAL", 24*time.Hour),
		},
		Persist: PersistConfig{
			Retries: getEnvAsInt("PERSIST_RETRIES", 3),
			Backoff: getEnvAsDuration("PERSIST_BACKOFF", 500*time.Millisecond),
		},
		JWT: JWTConfig{
			Enabled:    getEnvAsBool("AUTH_ENABLED", false),
			Secret:     getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration: jwtExp,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 1048576)),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Scoring.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c ScoringConfig) validate() error {
	if c.MediumThreshold >= c.HighThreshold || c.HighThreshold >= c.CriticalThreshold {
		return fmt.Errorf("severity thresholds must be strictly increasing: medium=%d high=%d critical=%d",
			c.MediumThreshold, c.HighThreshold, c.CriticalThreshold)
	}
	return nil
}

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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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

func getEnvAsSlice(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
