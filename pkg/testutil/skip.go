// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// SkipIfShort skips the test if running in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// RequireContainers skips the test in short mode or when no healthy
// container runtime is reachable.
func RequireContainers(t *testing.T) {
	t.Helper()
	SkipIfShort(t)
	testcontainers.SkipIfProviderIsNotHealthy(t)
}
