// Package errors classifies failures of the sync service by category so the
// CLI can pick an exit code and the HTTP server a status from one table.
//
//	err := errors.NetworkError("clone failed").
//		WithContext("url", sourceURL).
//		Build()
package errors
