// Package config loads application configuration from an optional YAML
// file and HTTPUSERS_* environment variables.
//
// # Overview
//
// Precedence, lowest first: built-in defaults, the YAML file, the
// environment. Load validates the result.
//
//	cfg, err := config.Load(os.Getenv("HTTPUSERS_CONFIG"))
//
// # Configuration Structure
//
//	server:
//	  port: "8080"
//	storage:
//	  backend: postgres          # memory, postgres, pgx, sqlite
//	  dsn: postgres://localhost/httpusers?sslmode=disable
//	cache:
//	  enabled: true
//	  redis-url: redis://localhost:6379/0
//	attachments:
//	  backend: s3                # database, filesystem, s3
//	  s3:
//	    bucket: httpusers-keys
//	mailer:
//	  type: webhook              # log, webhook, none
//	  webhook-url: https://mail.internal/send
//	user:
//	  require-activation: false
//	  require-confirmation: true
//	stats:
//	  schedule: "@every 1m"
//
// Every key has an environment equivalent, for example
// HTTPUSERS_STORAGE_BACKEND, HTTPUSERS_REDIS_URL,
// HTTPUSERS_REQUIRE_ACTIVATION and HTTPUSERS_CORS_ALLOWED_ORIGINS (comma
// separated).
//
// # Hot Reload
//
// Watcher re-reads the file on change and swaps the signup policy. A file
// that fails to load or validate leaves the previous policy in place.
//
//	w, _ := config.NewWatcher(path, cfg, logger)
//	go w.Run(ctx)
//	svc := users.NewService(users.Options{Policy: w.Policy, ...})
package config
