// Package main hosts the contact-intake service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts POST /v1/contact as JSON or form data, resolves the client address
//     (proxy headers only when trusted), caps bodies at server.max_body_bytes, and maps each intake.Outcome onto a
//     status code. The body is always one of a fixed set of messages plus optional per-field errors.
//   - Admission: internal/intake.Service runs honeypot and schema validation, then the rate limiter. The limiter
//     checks the hashed email identifier first and the hashed client address second, against Redis (sliding window)
//     or an in-process fixed window outside production.
//   - Persistence & sync: admitted leads are inserted into Postgres (or memory) as pending, then upserted into
//     HubSpot by email. The lead ends as synced or needs_sync; CRM failures never reach the submitter.
//   - Side effects: owner and thank-you emails go through SendGrid, Postmark or Resend; a lead.sync_recorded event
//     without personal data is published to Pub/Sub when configured. Both are best-effort.
//   - Configuration & plumbing: Viper populates config from env (INTAKE_*), a dotenv file and an optional config
//     file; zap provides structured logging with secret redaction; Prometheus metrics are exported on /metrics.
//
// Operational notes:
//   - Production refuses to start without rate_limit.redis_url, db.dsn and crm.token. Outside production a
//     missing Redis falls back to per-instance memory limits with a warning.
//   - Raw emails and client addresses never reach logs or metrics; only salted SHA-256 hashes do.
//   - The process drains in-flight requests on SIGTERM before closing Redis, Postgres and Pub/Sub clients.
//
// Quick checklist:
//   - Run locally: go run ./cmd/contact-intake serve (config from env or --config config.yaml).
//   - Replay stuck leads: go run ./cmd/contact-intake reconcile, typically from a scheduled job.
package main
