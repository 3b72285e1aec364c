// Package api hosts the HTTP server, middleware, and handlers for the contact
// form. Notable routes:
//   - POST /v1/contact accepts JSON or form-encoded submissions.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
