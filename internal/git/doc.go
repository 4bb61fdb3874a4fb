// Package git wraps go-git with the handful of operations a read-only mirror
// needs: clone, fetch-and-reset pull, remote URL management and repository
// validity checks. Failures are classified into typed errors so callers can
// tell an unreachable remote from a permanent misconfiguration.
package git
