package types

// ProjectConfig represents the top-level narrator.yaml configuration.
type ProjectConfig struct {
	Provider    string            `yaml:"provider"`
	SQLite      *SQLiteConfig     `yaml:"sqlite,omitempty"`
	Redis       *RedisConfig      `yaml:"redis,omitempty"`
	DynamoDB    *DynamoDBConfig   `yaml:"dynamodb,omitempty"`
	LLM         *LLMConfig        `yaml:"llm,omitempty"`
	Resilience  *ResilienceConfig `yaml:"resilience,omitempty"`
	Queue       *QueueConfig      `yaml:"queue,omitempty"`
	Staging     *StagingConfig    `yaml:"staging,omitempty"`
	Conditions  *ConditionsConfig `yaml:"conditions,omitempty"`
	Notify      []SinkConfig      `yaml:"notify,omitempty"`
	CatalogDirs []string          `yaml:"catalogDirs"`
	Telemetry   *TelemetryConfig  `yaml:"telemetry,omitempty"`
	Reporter    *ReporterConfig   `yaml:"reporter,omitempty"`
	Archive     *ArchiveConfig    `yaml:"archive,omitempty"`
}

// SQLiteConfig holds the embedded database settings.
type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"`
}

// RedisConfig holds Redis/Valkey connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName    string `yaml:"tableName" json:"tableName"`
	Region       string `yaml:"region" json:"region"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	RetentionTTL string `yaml:"retentionTtl,omitempty" json:"retentionTtl,omitempty"` // expiry for finished queue items, e.g. "168h"
	CreateTable  bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// LLMConfig configures the AI backend.
type LLMConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	BaseURL      string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	Model        string `yaml:"model" json:"model"`
	APIKey       string `yaml:"apiKey,omitempty" json:"-"`
	APIKeySecret string `yaml:"apiKeySecret,omitempty" json:"apiKeySecret,omitempty"` // Secrets Manager ARN or name
	Timeout      string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxTokens    int    `yaml:"maxTokens,omitempty" json:"maxTokens,omitempty"`
}

// ResilienceConfig configures the circuit breaker and retry policy for AI calls.
type ResilienceConfig struct {
	FailureThreshold    int      `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"`
	OpenDuration        string   `yaml:"openDuration,omitempty" json:"openDuration,omitempty"`
	HalfOpenMaxRequests int      `yaml:"halfOpenMaxRequests,omitempty" json:"halfOpenMaxRequests,omitempty"`
	MaxRetries          *int     `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`
	BaseDelayMs         int      `yaml:"baseDelayMs,omitempty" json:"baseDelayMs,omitempty"`
	MaxDelayMs          int      `yaml:"maxDelayMs,omitempty" json:"maxDelayMs,omitempty"`
	JitterFactor        *float64 `yaml:"jitterFactor,omitempty" json:"jitterFactor,omitempty"`
}

// QueueConfig configures the worker pool.
type QueueConfig struct {
	RecoveryInterval string            `yaml:"recoveryInterval,omitempty" json:"recoveryInterval,omitempty"` // e.g. "30s"
	Workers          map[QueueType]int `yaml:"workers,omitempty" json:"workers,omitempty"`
	WakeQueueURL     string            `yaml:"wakeQueueUrl,omitempty" json:"wakeQueueUrl,omitempty"` // SQS queue used as a cross-process wake signal
}

// StagingConfig configures the staging engine.
type StagingConfig struct {
	DefaultTTLHours    int    `yaml:"defaultTtlHours,omitempty" json:"defaultTtlHours,omitempty"`
	UseLLM             bool   `yaml:"useLlm" json:"useLlm"`
	AutoApprove        bool   `yaml:"autoApprove,omitempty" json:"autoApprove,omitempty"`
	AutoApproveTimeout string `yaml:"autoApproveTimeout,omitempty" json:"autoApproveTimeout,omitempty"`
}

// ConditionsConfig configures the custom condition evaluator.
type ConditionsConfig struct {
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	CacheTTL  string   `yaml:"cacheTtl,omitempty" json:"cacheTtl,omitempty"`
}

// SinkType enumerates notification sink kinds.
type SinkType string

// SinkType values.
const (
	SinkLog         SinkType = "log"
	SinkWebhook     SinkType = "webhook"
	SinkEventBridge SinkType = "eventbridge"
)

// SinkConfig configures one notification sink.
type SinkConfig struct {
	Type         SinkType `yaml:"type" json:"type"`
	URL          string   `yaml:"url,omitempty" json:"url,omitempty"`
	EventBusName string   `yaml:"eventBusName,omitempty" json:"eventBusName,omitempty"`
	Source       string   `yaml:"source,omitempty" json:"source,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// ReporterConfig configures the periodic director status report.
type ReporterConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// ArchiveConfig configures periodic archival to Postgres.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	DSN       string `yaml:"dsn,omitempty" json:"-"`
	DSNSecret string `yaml:"dsnSecret,omitempty" json:"dsnSecret,omitempty"` // Secrets Manager ARN or name
	Interval  string `yaml:"interval,omitempty" json:"interval,omitempty"`
}
