// Package config handles configuration loading for coven-harness.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${HARNESS_BEARER_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	timing:
//	  debounce: "5s"
//	  hard_limit: "20s"
//	  stream_fallback: "6s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Agent under test:
//
//	agent:
//	  url: "http://localhost:3978/api/messages"
//
// Callback ingress:
//
//	ingress:
//	  addr: "127.0.0.1:0"            # 0 picks a free port
//	  base_url: ""                   # advertised serviceUrl override
//
// Authentication (one of):
//
//	auth:
//	  token: "${HARNESS_BEARER_TOKEN}"   # static bearer token
//	  jwt_secret: "${HARNESS_JWT_SECRET}" # self-issued HS256 tokens
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Post-run artifacts:
//
//	artifact:
//	  report_dir: "./reports"
//	  archive_path: "./reports/run.db"
//
// # Usage
//
//	cfg, err := config.Load("harness.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	correlator := exchange.NewCorrelator(cfg.ExchangeTiming(), logger)
package config
