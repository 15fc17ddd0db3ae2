// Package config loads the shipper's configuration from a YAML file, with
// environment-variable overrides for values operators typically inject at
// deploy time (credentials, endpoints). The schema follows the enumerated
// secor.* settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration schema.
type Config struct {
	Kafka      KafkaConfig      `yaml:"kafka"`
	S3         S3Config         `yaml:"s3"`
	Local      LocalConfig      `yaml:"local"`
	Offsets    OffsetsConfig    `yaml:"offsets"`
	Parser     ParserConfig     `yaml:"parser"`
	Codec      CodecConfig      `yaml:"codec"`
	Policy     CommitPolicyConfig `yaml:"commit_policy"`
	Pattern    string           `yaml:"output_file_pattern"`
	Generation int              `yaml:"generation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// KafkaConfig configures the Kafka client (secor.kafka.*).
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Group   string   `yaml:"group"` // secor.kafka.group
	Topics  []string `yaml:"topics"`
	// ClientLibrary selects the MessageSource adapter: "franz" (default) or
	// "sarama".
	ClientLibrary string `yaml:"client_library"`
}

// S3Config configures the object store root (secor.s3.path / secor.swift.path).
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"` // secor.s3.path
	Endpoint        string `yaml:"endpoint"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	KMSKeyARN       string `yaml:"kms_key_arn"`
}

// LocalConfig configures the local staging directory (secor.local.path).
type LocalConfig struct {
	Path string `yaml:"path"`
}

// OffsetsConfig configures the coordination store and per-partition batching
// (secor.offsets.per.partition, offset store backend/endpoints).
type OffsetsConfig struct {
	Backend         string   `yaml:"backend"` // "etcd" or "memory"
	Endpoints       []string `yaml:"endpoints"`
	PerPartition    int64    `yaml:"per_partition"` // secor.offsets.per.partition
	LeaseTTLSeconds int      `yaml:"lease_ttl_seconds"`
}

// ParserConfig configures message-parser selection and behavior
// (secor.message.parser.class and friends).
type ParserConfig struct {
	// Class selects the parser variant: "timestamped", "pattern_date", or
	// "daily_offset".
	Class string `yaml:"class"`

	TimestampName         string `yaml:"timestamp_name"`
	FallbackTimestampName string `yaml:"fallback_timestamp_name"`
	TimestampUnit         string `yaml:"timestamp_unit"` // "s", "ms", "ns"
	TimestampInputPattern string `yaml:"timestamp_input_pattern"`

	OutputDtFormat string `yaml:"output_dt_format"` // secor.partition.output_dt_format
	TimeZone       string `yaml:"time_zone"`
	UsingHourly    bool   `yaml:"using_hourly"`
	UsingMinutely  bool   `yaml:"using_minutely"`

	PrefixEnable     bool   `yaml:"prefix_enable"`     // secor.partition.prefix.enable
	PrefixIdentifier string `yaml:"prefix_identifier"` // secor.partition.prefix.identifier
	PrefixMapping    string `yaml:"prefix_mapping"`    // secor.partition.prefix.mapping (JSON, must contain DEFAULT)

	MessageChannelIdentifier string `yaml:"message_channel_identifier"` // dotted payload path

	FallbackPartition string `yaml:"fallback_partition"` // e.g. "dt=1970-01-01"

	OffsetsPerPartition int64 `yaml:"offsets_per_partition"` // DailyOffset bucket size
}

// CodecConfig configures the FileCodec (secor.file.reader/writer.delimiter, format).
type CodecConfig struct {
	Format string `yaml:"format"` // "delimited", "sequencefile", "orc"

	ReaderDelimiter string `yaml:"reader_delimiter"` // single byte; default '\n'
	WriterDelimiter string `yaml:"writer_delimiter"` // empty means "do not append"

	Compression string `yaml:"compression"` // "none", "gzip", "snappy", "lz4"

	// Schemas maps topic name to a comma-separated list of name:type column
	// pairs, required for ORC.
	Schemas map[string]string `yaml:"schemas"`
}

// CommitPolicyConfig configures flush/upload triggers (secor.max.file.*).
type CommitPolicyConfig struct {
	MaxFileSizeBytes int64  `yaml:"max_file_size_bytes"`
	MaxFileAgeSeconds int64 `yaml:"max_file_age_seconds"`
	MaxFileRecords   int64  `yaml:"max_file_records"`
	AgePolicy        string `yaml:"age_policy"` // "oldest" | "newest"

	UploadConcurrency int `yaml:"upload_concurrency"`
	UploadRetries     int `yaml:"upload_retries"`
	UploadBackoff     time.Duration `yaml:"upload_backoff"`
}

// MetricsConfig configures the HTTP metrics/health server.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads and validates configuration from path, applying environment
// overrides for values operators commonly inject at deploy time rather than
// bake into the checked-in YAML.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SECOR_S3_ACCESS_KEY_ID"); v != "" {
		cfg.S3.AccessKeyID = v
	}
	if v := os.Getenv("SECOR_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.S3.SecretAccessKey = v
	}
	if v := os.Getenv("SECOR_S3_SESSION_TOKEN"); v != "" {
		cfg.S3.SessionToken = v
	}
	if v := os.Getenv("SECOR_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("SECOR_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SECOR_OFFSETS_PER_PARTITION"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Offsets.PerPartition = n
		}
	}
}

func setDefaults(cfg *Config) {
	if cfg.Generation == 0 {
		cfg.Generation = 0
	}
	if cfg.Parser.Class == "" {
		cfg.Parser.Class = "timestamped"
	}
	if cfg.Parser.TimestampUnit == "" {
		cfg.Parser.TimestampUnit = "ms"
	}
	if cfg.Parser.OutputDtFormat == "" {
		cfg.Parser.OutputDtFormat = "'dt='yyyy-MM-dd"
	}
	if cfg.Parser.TimeZone == "" {
		cfg.Parser.TimeZone = "UTC"
	}
	if cfg.Parser.FallbackPartition == "" {
		cfg.Parser.FallbackPartition = "dt=1970-01-01"
	}
	if cfg.Codec.Format == "" {
		cfg.Codec.Format = "delimited"
	}
	if cfg.Codec.ReaderDelimiter == "" {
		cfg.Codec.ReaderDelimiter = "\n"
	}
	if cfg.Policy.AgePolicy == "" {
		cfg.Policy.AgePolicy = "oldest"
	}
	if cfg.Policy.UploadConcurrency <= 0 {
		cfg.Policy.UploadConcurrency = 4
	}
	if cfg.Policy.UploadRetries <= 0 {
		cfg.Policy.UploadRetries = 5
	}
	if cfg.Policy.UploadBackoff <= 0 {
		cfg.Policy.UploadBackoff = 500 * time.Millisecond
	}
	if cfg.Offsets.LeaseTTLSeconds <= 0 {
		cfg.Offsets.LeaseTTLSeconds = 10
	}
	if cfg.Offsets.PerPartition <= 0 {
		cfg.Offsets.PerPartition = 10000
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9093"
	}
	if cfg.Kafka.ClientLibrary == "" {
		cfg.Kafka.ClientLibrary = "franz"
	}
}

// Validate checks required fields and cross-field constraints.
func (c Config) Validate() error {
	if c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required")
	}
	if c.Local.Path == "" {
		return fmt.Errorf("local.path is required")
	}
	if c.Kafka.Group == "" {
		return fmt.Errorf("kafka.group is required")
	}
	if len(c.Kafka.Topics) == 0 {
		return fmt.Errorf("kafka.topics must not be empty")
	}
	switch c.Parser.Class {
	case "timestamped", "pattern_date", "daily_offset":
	default:
		return fmt.Errorf("unknown parser.class %q", c.Parser.Class)
	}
	switch c.Codec.Format {
	case "delimited", "sequencefile", "orc":
	default:
		return fmt.Errorf("unknown codec.format %q", c.Codec.Format)
	}
	if c.Codec.Format == "orc" && len(c.Codec.Schemas) == 0 {
		return fmt.Errorf("codec.schemas is required for orc format")
	}
	return nil
}
