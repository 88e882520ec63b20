// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// TestEnvironment bundles a quiet logger, its capture hook, a context with a
// deadline and a scratch directory.
type TestEnvironment struct {
	Logger  *logrus.Logger
	Hook    *test.Hook
	Context context.Context
	Cancel  context.CancelFunc
	TempDir string
	T       *testing.T
}

// NewTestEnvironment creates a test environment cleaned up with the test
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	return &TestEnvironment{
		Logger:  logger,
		Hook:    hook,
		Context: ctx,
		Cancel:  cancel,
		TempDir: t.TempDir(),
		T:       t,
	}
}

// Messages returns the captured log messages at level
func (env *TestEnvironment) Messages(level logrus.Level) []string {
	var out []string
	for _, e := range env.Hook.AllEntries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Logged reports whether message was logged at level
func (env *TestEnvironment) Logged(level logrus.Level, message string) bool {
	for _, m := range env.Messages(level) {
		if m == message {
			return true
		}
	}
	return false
}
