package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/mediacache/mediacache/pkg/utils"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Placement  PlacementConfig  `yaml:"placement"`
	Origin     OriginConfig     `yaml:"origin"`
	AccessLog  AccessLogConfig  `yaml:"access_log"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Retry      RetryConfig      `yaml:"retry"`
}

// GlobalConfig represents process-wide settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
	LockFile  string `yaml:"lock_file"`
}

// PlacementConfig represents cache placement settings
type PlacementConfig struct {
	MinViewsForCaching int      `yaml:"min_views_for_caching"`
	VolumePaths        []string `yaml:"volume_paths"`
	VolumeReserve      string   `yaml:"volume_reserve"`
	CandidateOrder     string   `yaml:"candidate_order"`
	DryRun             bool     `yaml:"dry_run"`
}

// OriginConfig represents the read-only primary store
type OriginConfig struct {
	Backend string         `yaml:"backend"`
	Path    string         `yaml:"path"`
	S3      S3OriginConfig `yaml:"s3"`

	// FailureThreshold consecutive origin failures stop further origin calls
	// for FailureCooldown.
	FailureThreshold int           `yaml:"failure_threshold"`
	FailureCooldown  time.Duration `yaml:"failure_cooldown"`
}

// S3OriginConfig represents an S3 bucket used as origin
type S3OriginConfig struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// AccessLogConfig represents the access-event feed
type AccessLogConfig struct {
	Paths    []string `yaml:"paths"`
	Statuses []int    `yaml:"statuses"`
}

// LedgerConfig represents popularity ledger persistence
type LedgerConfig struct {
	Backend string            `yaml:"backend"`
	Path    string            `yaml:"path"`
	Redis   RedisLedgerConfig `yaml:"redis"`
}

// RedisLedgerConfig represents a Redis hash ledger
type RedisLedgerConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MonitoringConfig represents metrics export settings
type MonitoringConfig struct {
	TextfilePath   string            `yaml:"textfile_path"`
	PushgatewayURL string            `yaml:"pushgateway_url"`
	JobName        string            `yaml:"job_name"`
	CustomLabels   map[string]string `yaml:"custom_labels"`
}

// RetryConfig represents retry settings for remote origin and ledger calls
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Backend names
const (
	OriginFilesystem = "filesystem"
	OriginS3         = "s3"
	LedgerFile       = "file"
	LedgerRedis      = "redis"
	OrderInput       = "input"
	OrderPopularity  = "popularity"
)

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Placement: PlacementConfig{
			MinViewsForCaching: 2,
			VolumePaths: []string{
				"/cache/top",
				"/cache2/top",
				"/cache3/top",
				"/cache4/top",
			},
			VolumeReserve:  "0",
			CandidateOrder: OrderInput,
		},
		Origin: OriginConfig{
			Backend: OriginFilesystem,
			Path:    "/films1/share",
			S3: S3OriginConfig{
				Region: "us-east-1",
			},
			FailureThreshold: 5,
			FailureCooldown:  30 * time.Second,
		},
		AccessLog: AccessLogConfig{
			Paths:    []string{"/var/log/nginx/access.log"},
			Statuses: []int{200},
		},
		Ledger: LedgerConfig{
			Backend: LedgerFile,
			Path:    "/var/lib/mediacache/views.json",
			Redis: RedisLedgerConfig{
				Addr:    "localhost:6379",
				Key:     "mediacache:views",
				Timeout: 5 * time.Second,
			},
		},
		Monitoring: MonitoringConfig{
			JobName: "mediacache",
			CustomLabels: map[string]string{
				"service": "mediacache",
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    10 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from MEDIACACHE_* environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("MEDIACACHE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("MEDIACACHE_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("MEDIACACHE_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("MEDIACACHE_LOCK_FILE"); val != "" {
		c.Global.LockFile = val
	}

	if val := os.Getenv("MEDIACACHE_MIN_VIEWS"); val != "" {
		minViews, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid MEDIACACHE_MIN_VIEWS: %w", err)
		}
		c.Placement.MinViewsForCaching = minViews
	}
	if val := os.Getenv("MEDIACACHE_VOLUME_PATHS"); val != "" {
		c.Placement.VolumePaths = splitList(val)
	}
	if val := os.Getenv("MEDIACACHE_VOLUME_RESERVE"); val != "" {
		c.Placement.VolumeReserve = val
	}
	if val := os.Getenv("MEDIACACHE_DRY_RUN"); val != "" {
		c.Placement.DryRun = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("MEDIACACHE_ORIGIN_BACKEND"); val != "" {
		c.Origin.Backend = val
	}
	if val := os.Getenv("MEDIACACHE_ORIGIN_PATH"); val != "" {
		c.Origin.Path = val
	}
	if val := os.Getenv("MEDIACACHE_S3_BUCKET"); val != "" {
		c.Origin.S3.Bucket = val
	}
	if val := os.Getenv("MEDIACACHE_S3_ENDPOINT"); val != "" {
		c.Origin.S3.Endpoint = val
	}

	if val := os.Getenv("MEDIACACHE_ACCESS_LOGS"); val != "" {
		c.AccessLog.Paths = splitList(val)
	}

	if val := os.Getenv("MEDIACACHE_LEDGER_BACKEND"); val != "" {
		c.Ledger.Backend = val
	}
	if val := os.Getenv("MEDIACACHE_LEDGER_PATH"); val != "" {
		c.Ledger.Path = val
	}
	if val := os.Getenv("MEDIACACHE_REDIS_ADDR"); val != "" {
		c.Ledger.Redis.Addr = val
	}
	if val := os.Getenv("MEDIACACHE_REDIS_PASSWORD"); val != "" {
		c.Ledger.Redis.Password = val
	}

	if val := os.Getenv("MEDIACACHE_METRICS_TEXTFILE"); val != "" {
		c.Monitoring.TextfilePath = val
	}
	if val := os.Getenv("MEDIACACHE_PUSHGATEWAY_URL"); val != "" {
		c.Monitoring.PushgatewayURL = val
	}

	return nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// VolumeReserveBytes returns the parsed per-volume reserve.
func (c *Configuration) VolumeReserveBytes() (int64, error) {
	if c.Placement.VolumeReserve == "" {
		return 0, nil
	}
	return utils.ParseBytes(c.Placement.VolumeReserve)
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Placement.MinViewsForCaching < 1 {
		return fmt.Errorf("min_views_for_caching must be at least 1")
	}

	if len(c.Placement.VolumePaths) == 0 {
		return fmt.Errorf("at least one volume path is required")
	}
	seen := make(map[string]bool)
	for _, p := range c.Placement.VolumePaths {
		if p == "" {
			return fmt.Errorf("volume path cannot be empty")
		}
		clean := filepath.Clean(p)
		if seen[clean] {
			return fmt.Errorf("duplicate volume path: %s", p)
		}
		seen[clean] = true
	}

	if _, err := c.VolumeReserveBytes(); err != nil {
		return fmt.Errorf("invalid volume_reserve: %w", err)
	}

	switch c.Placement.CandidateOrder {
	case OrderInput, OrderPopularity, "":
	default:
		return fmt.Errorf("invalid candidate_order: %s (must be one of: %s, %s)",
			c.Placement.CandidateOrder, OrderInput, OrderPopularity)
	}

	switch c.Origin.Backend {
	case OriginFilesystem:
		if c.Origin.Path == "" {
			return fmt.Errorf("origin path is required for the filesystem backend")
		}
		for _, p := range c.Placement.VolumePaths {
			if filepath.Clean(p) == filepath.Clean(c.Origin.Path) {
				return fmt.Errorf("volume path %s is the origin", p)
			}
		}
	case OriginS3:
		if c.Origin.S3.Bucket == "" {
			return fmt.Errorf("origin s3 bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid origin backend: %s (must be one of: %s, %s)",
			c.Origin.Backend, OriginFilesystem, OriginS3)
	}
	if c.Origin.FailureThreshold < 0 {
		return fmt.Errorf("origin failure_threshold cannot be negative")
	}

	switch c.Ledger.Backend {
	case LedgerFile:
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger path is required for the file backend")
		}
	case LedgerRedis:
		if c.Ledger.Redis.Addr == "" || c.Ledger.Redis.Key == "" {
			return fmt.Errorf("redis ledger requires addr and key")
		}
	default:
		return fmt.Errorf("invalid ledger backend: %s (must be one of: %s, %s)",
			c.Ledger.Backend, LedgerFile, LedgerRedis)
	}

	for _, status := range c.AccessLog.Statuses {
		if status < 100 || status > 599 {
			return fmt.Errorf("invalid access_log status: %d", status)
		}
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	switch c.Global.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	return nil
}
