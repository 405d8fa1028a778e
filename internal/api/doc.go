// Package api exposes the analysis engine over HTTP. The router serves the
// report lifecycle (create, upload assets, request analysis, fetch results),
// the credit ledger (balance, history, grants), health, and Prometheus
// metrics. Callers authenticate with the shared API token and identify the
// acting account through the X-Owner-ID header.
package api
