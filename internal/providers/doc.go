// Package providers defines the uniform analysis-provider capability, the
// per-kind structured result types with their required-field contracts, and
// the chain that drives retries and provider fallback.
//
// A concrete binding (see the vision and audio subpackages) performs its own
// bounded retry of transient failures. The Chain adds at most one fallback to
// a secondary binding per request and classifies every attempt outcome for
// logging and metrics. Malformed payloads are never retried against the same
// payload; they count as a contract violation, not as success.
package providers
