package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ewsync/internal/logger"
)

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "ewsync", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"discover", "sync", "sanitise", "settings", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestRootCmd_VerboseFlag(t *testing.T) {
	defer logger.SetVerbose(false)

	_, _, err := execute(t, "--verbose", "version")

	require.NoError(t, err)
	assert.True(t, logger.IsVerbose())
}

func TestRootCmd_TraceFlag(t *testing.T) {
	defer func() {
		logger.SetTrace(false)
		logger.SetVerbose(false)
	}()

	_, _, err := execute(t, "--trace", "version")

	require.NoError(t, err)
	assert.True(t, logger.IsTracing())
	assert.True(t, logger.IsVerbose())
}

func TestSetServices(t *testing.T) {
	oldSettings, oldFactory := settingsService, factory
	defer func() {
		settingsService, factory = oldSettings, oldFactory
	}()

	svc := &mockSettingsService{settings: testSettings()}
	f := &mockFactory{}
	SetServices(&Services{Settings: svc, Factory: f})

	assert.Same(t, svc, settingsService)
	assert.Same(t, f, factory)
}

func TestSetServices_NilIsIgnored(t *testing.T) {
	oldSettings := settingsService
	defer func() { settingsService = oldSettings }()

	svc := &mockSettingsService{settings: testSettings()}
	settingsService = svc
	SetServices(nil)

	assert.Same(t, svc, settingsService)
}

func TestSetVersion(t *testing.T) {
	original := version
	defer func() { version = original }()

	SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", version)
}
