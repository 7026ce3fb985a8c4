// Package config handles configuration loading for portcullis.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion, layered over built-in defaults. An empty path yields the
// defaults alone.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  session_secret: "${PORTCULLIS_SESSION_SECRET}"
//
// Syntax: ${VAR_NAME}. When auth.session_secret is left empty the
// PORTCULLIS_SESSION_SECRET variable is used directly.
//
// # Configuration Sections
//
//	environment: production        # production, development
//
//	server:
//	  addr: ":8080"
//	  tls_cert: ""
//	  tls_key: ""
//
//	gate:
//	  addr: ":8081"
//	  upstream: "http://127.0.0.1:8080"
//	  bypass_prefixes: ["/api", "/assets"]
//	  login_path: "/admin/login"
//	  protected_prefix: "/admin"
//
//	storage:
//	  driver: bbolt                # bbolt, postgres, memory
//	  path: "./data/portcullis.db"
//	  dsn: "${PORTCULLIS_DATABASE_URL}"
//
//	auth:
//	  session_secret: "${PORTCULLIS_SESSION_SECRET}"
//	  session_lifetime: "720h"
//	  default_username: admin
//	  default_password: changeme
//	  password_hash: sha256        # sha256, argon2id
//	  argon2id_profile: moderate   # interactive, moderate, sensitive
//
//	logging:
//	  level: info                  # debug, info, warn, error
//	  format: json                 # json, text, console
//
// # Validation
//
// Load validates the result. Outside development the session secret must be
// at least 32 bytes; in development a fixed fallback secret is used when none
// is configured.
package config
