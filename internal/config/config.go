// Package config loads process configuration from environment variables,
// with an optional YAML file overlay, and watches the file for changes to
// runtime-tunable values.
package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ServerConfig controls the HTTP listener and shutdown behavior.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// StoreConfig controls the PostgreSQL connection.
type StoreConfig struct {
	DSN      string
	MaxConns int32
	Timeout  time.Duration
}

// RedisConfig controls the recency-queue Redis connection.
type RedisConfig struct {
	Addr     string
	DB       int
	Capacity int
	Timeout  time.Duration
}

// PipelineConfig controls chunking, compression, and worker-pool sizing.
type PipelineConfig struct {
	ChunkSize      int
	Workers        int
	SearchBoundary int
	CompressionLvl int
}

// SchedulerConfig controls the async processing queue.
type SchedulerConfig struct {
	QueueSize int
	Workers   int
}

// SinkConfig describes one audit event destination.
type SinkConfig struct {
	Type          string // stdout | file | http
	FilePath      string
	HTTPEndpoint  string
	HTTPHeaders   map[string]string
	BatchSize     int
	FlushInterval time.Duration
	RetryCount    int
	RetryBackoff  time.Duration
}

// AuditConfig controls whether and where audit events are recorded.
type AuditConfig struct {
	Enabled            bool
	Sink               SinkConfig
	MaxEvents          int
	RedactMetadataKeys []string
}

// TracingConfig selects the OpenTelemetry trace exporter.
type TracingConfig struct {
	Exporter     string // stdout | otlp | none
	OTLPEndpoint string
}

// SnippetConfig holds the domain tunables from spec section 6.3.
type SnippetConfig struct {
	MaxSnippetBytes    int64
	MaxSnippetsPerUser int
	MaxWords           int
	DuplicateScanDepth int
}

// Config is the fully assembled process configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	Pipeline  PipelineConfig
	Sched     SchedulerConfig
	Audit     AuditConfig
	Tracing   TracingConfig
	Snippet   SnippetConfig
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables (prefixed CLIP_),
// optionally overlaid by a YAML file at configPath. An empty configPath
// skips the file layer.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("clip")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return build(v), nil
}

// Watch layers a live reload on top of a previously loaded file-backed
// Config: whenever the file changes, onChange receives the freshly
// rebuilt Config. Callers are expected to atomically swap tunables that
// are safe to change without a restart (pool sizes, caps); structural
// fields (DSNs, addresses) are read once at startup regardless.
func Watch(configPath string, onChange func(*Config)) error {
	if configPath == "" {
		return nil
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		onChange(build(v))
	})
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.max_conns", 20)
	v.SetDefault("store.timeout", 5*time.Second)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.capacity", 50)
	v.SetDefault("redis.timeout", 2*time.Second)

	v.SetDefault("pipeline.chunk_size", 65536)
	v.SetDefault("pipeline.workers", 10)
	v.SetDefault("pipeline.search_boundary", 100)
	v.SetDefault("pipeline.compression_level", 6)

	v.SetDefault("sched.queue_size", 256)
	v.SetDefault("sched.workers", 4)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.sink.type", "stdout")
	v.SetDefault("audit.sink.batch_size", 20)
	v.SetDefault("audit.sink.flush_interval", 2*time.Second)
	v.SetDefault("audit.sink.retry_count", 3)
	v.SetDefault("audit.sink.retry_backoff", 200*time.Millisecond)
	v.SetDefault("audit.max_events", 10000)
	v.SetDefault("audit.redact_metadata_keys", []string{"content", "query"})

	v.SetDefault("snippet.max_snippet_bytes", 20_000_000)
	v.SetDefault("snippet.max_snippets_per_user", 1000)
	v.SetDefault("snippet.max_words", 3_000_000)
	v.SetDefault("snippet.duplicate_scan_depth", 50)

	v.SetDefault("tracing.exporter", "none")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func build(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Store: StoreConfig{
			DSN:      v.GetString("store.dsn"),
			MaxConns: int32(v.GetInt("store.max_conns")),
			Timeout:  v.GetDuration("store.timeout"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			DB:       v.GetInt("redis.db"),
			Capacity: v.GetInt("redis.capacity"),
			Timeout:  v.GetDuration("redis.timeout"),
		},
		Pipeline: PipelineConfig{
			ChunkSize:      v.GetInt("pipeline.chunk_size"),
			Workers:        v.GetInt("pipeline.workers"),
			SearchBoundary: v.GetInt("pipeline.search_boundary"),
			CompressionLvl: v.GetInt("pipeline.compression_level"),
		},
		Sched: SchedulerConfig{
			QueueSize: v.GetInt("sched.queue_size"),
			Workers:   v.GetInt("sched.workers"),
		},
		Audit: AuditConfig{
			Enabled: v.GetBool("audit.enabled"),
			Sink: SinkConfig{
				Type:          v.GetString("audit.sink.type"),
				FilePath:      v.GetString("audit.sink.file_path"),
				HTTPEndpoint:  v.GetString("audit.sink.http_endpoint"),
				BatchSize:     v.GetInt("audit.sink.batch_size"),
				FlushInterval: v.GetDuration("audit.sink.flush_interval"),
				RetryCount:    v.GetInt("audit.sink.retry_count"),
				RetryBackoff:  v.GetDuration("audit.sink.retry_backoff"),
			},
			MaxEvents:          v.GetInt("audit.max_events"),
			RedactMetadataKeys: v.GetStringSlice("audit.redact_metadata_keys"),
		},
		Tracing: TracingConfig{
			Exporter:     v.GetString("tracing.exporter"),
			OTLPEndpoint: v.GetString("tracing.otlp_endpoint"),
		},
		Snippet: SnippetConfig{
			MaxSnippetBytes:    v.GetInt64("snippet.max_snippet_bytes"),
			MaxSnippetsPerUser: v.GetInt("snippet.max_snippets_per_user"),
			MaxWords:           v.GetInt("snippet.max_words"),
			DuplicateScanDepth: v.GetInt("snippet.duplicate_scan_depth"),
		},
		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
	}
}
