// Package workflow runs the analysis queue. A pool of workers claims
// requested reports, drives each one through the orchestrator while
// heartbeating, and a reclaim loop compensates reports whose worker
// died mid-run.
package workflow
