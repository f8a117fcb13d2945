// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/notebooks/{notebook_id} for record inspection.
//   - POST /v1/notebooks/{notebook_id}/sync and /v1/repos/{repo_id}/sync to
//     force enrichment jobs onto the queue.
package api
