// Package api hosts the HTTP server, middleware, and JSON handlers. Notable routes:
//   - POST/GET /api/suggest for domain name suggestions.
//   - POST /api/task and /api/bulk-task for business tasks.
//   - POST /api/generate for content generation.
//   - GET /api/cache/stats and POST /api/cache/clear for cache administration.
//   - GET /api/test to probe the AI provider.
//   - GET /health, /healthz, /readyz for probes and GET /metrics for Prometheus scraping.
package api
