/*
Package config provides configuration management for mediacache with multi-source support.

A Configuration is assembled in layers. Later layers override earlier ones:

	┌─────────────────────────────────────────────┐
	│          Command-line flags                 │ ← Highest Priority
	│   (-min-views, -dry-run, -log-level)        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│           (MEDIACACHE_*)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Configuration Structure

	global:
	  log_level: INFO            # DEBUG, INFO, WARN, ERROR
	  log_format: text           # text or json
	  log_file: ""               # empty logs to stderr
	  lock_file: /run/mediacache.lock

	placement:
	  min_views_for_caching: 2
	  volume_paths: [/cache/top, /cache2/top, /cache3/top, /cache4/top]
	  volume_reserve: "0"        # per-volume headroom, e.g. 10G
	  candidate_order: input     # input or popularity
	  dry_run: false

	origin:
	  backend: filesystem        # filesystem or s3
	  path: /films1/share
	  failure_threshold: 5       # 0 disables the origin circuit breaker
	  failure_cooldown: 30s
	  s3:
	    bucket: films
	    prefix: share/
	    region: us-east-1
	    endpoint: ""
	    use_path_style: false

	access_log:
	  paths: [/var/log/nginx/access.log]
	  statuses: [200]

	ledger:
	  backend: file              # file or redis
	  path: /var/lib/mediacache/views.json
	  redis:
	    addr: localhost:6379
	    key: mediacache:views
	    timeout: 5s

	monitoring:
	  textfile_path: ""          # node_exporter textfile collector target
	  pushgateway_url: ""
	  job_name: mediacache

	retry:
	  max_attempts: 4
	  base_delay: 200ms
	  max_delay: 10s

# Environment Variables

	MEDIACACHE_LOG_LEVEL, MEDIACACHE_LOG_FORMAT, MEDIACACHE_LOG_FILE, MEDIACACHE_LOCK_FILE
	MEDIACACHE_MIN_VIEWS, MEDIACACHE_VOLUME_PATHS (comma separated), MEDIACACHE_VOLUME_RESERVE
	MEDIACACHE_DRY_RUN
	MEDIACACHE_ORIGIN_BACKEND, MEDIACACHE_ORIGIN_PATH, MEDIACACHE_S3_BUCKET, MEDIACACHE_S3_ENDPOINT
	MEDIACACHE_ACCESS_LOGS (comma separated)
	MEDIACACHE_LEDGER_BACKEND, MEDIACACHE_LEDGER_PATH, MEDIACACHE_REDIS_ADDR, MEDIACACHE_REDIS_PASSWORD
	MEDIACACHE_METRICS_TEXTFILE, MEDIACACHE_PUSHGATEWAY_URL

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/mediacache/config.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

Validate rejects a configuration in which a cache volume is the origin
directory, since placement would then delete origin objects.
*/
package config
