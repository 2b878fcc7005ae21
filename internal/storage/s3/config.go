package s3

import (
	"time"
)

// Config represents the S3 origin configuration
type Config struct {
	Bucket         string        `yaml:"bucket"`
	Prefix         string        `yaml:"prefix"`
	Region         string        `yaml:"region"`
	Endpoint       string        `yaml:"endpoint"`
	ForcePathStyle bool          `yaml:"force_path_style"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// NewDefaultConfig returns defaults for an AWS-hosted bucket
func NewDefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
	}
}
