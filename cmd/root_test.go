// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/observability"
)

// noLaunchers fails the test if a command tries to start a browser.
func noLaunchers(t *testing.T) launcherFactory {
	return func(name string, _ *zap.Logger) (driver.Launcher, error) {
		t.Errorf("unexpected launcher request for %q", name)
		return nil, assert.AnError
	}
}

// execute runs a fresh command tree with a silent logger and returns its output.
func execute(t *testing.T, launchers launcherFactory, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	t.Setenv("SCALPELUI_LOGGER_LEVEL", "fatal")

	cmd := newRootCmd(launchers)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, noLaunchers(t), "--version")
	require.NoError(t, err)
	assert.Equal(t, "scalpel-ui version "+Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, err := execute(t, noLaunchers(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Scalpel UI runs YAML scenarios")
	assert.Contains(t, out, "run")
	assert.Contains(t, out, "logs")
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	_, err := execute(t, noLaunchers(t), "--config", "/nonexistent/config.yaml", "logs")
	assert.ErrorContains(t, err, "error reading config file")
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	t.Setenv("SCALPELUI_AUTOMATION_DEFAULT_TIMEOUT", "0s")
	_, err := execute(t, noLaunchers(t), "logs")
	assert.ErrorContains(t, err, "automation.default_timeout must be positive")
}

func TestGetConfigFromContext_Missing(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	assert.EqualError(t, err, "configuration not loaded")
}

func TestDefaultLaunchers(t *testing.T) {
	for _, name := range []string{"chromedp", "ROD", ""} {
		l, err := defaultLaunchers(name, zap.NewNop())
		require.NoError(t, err, name)
		assert.NotNil(t, l)
	}
	_, err := defaultLaunchers("selenium", zap.NewNop())
	assert.EqualError(t, err, `unknown browser driver "selenium"`)
}
