// Package services defines the shared error taxonomy and request context
// helpers used across the analysis engine. Errors are tagged with sentinel
// markers so the workflow manager, compensation saga, and HTTP layer can
// classify failures without inspecting error strings.
package services
