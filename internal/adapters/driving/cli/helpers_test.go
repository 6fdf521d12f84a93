package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driving"
)

// mockSettingsService implements driving.SettingsService for testing.
type mockSettingsService struct {
	settings    *domain.AppSettings
	getErr      error
	validateErr error
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	copied := *m.settings
	return &copied, nil
}

func (m *mockSettingsService) Save(s *domain.AppSettings) error {
	m.settings = s
	return nil
}

func (m *mockSettingsService) Validate(_ *domain.AppSettings) error {
	return m.validateErr
}

// mockAutodiscoverer implements driving.Autodiscoverer for testing.
type mockAutodiscoverer struct {
	resolution *driving.Resolution
	err        error
	calls      []string
}

func (m *mockAutodiscoverer) Resolve(_ context.Context, emailAddress string) (*driving.Resolution, error) {
	m.calls = append(m.calls, emailAddress)
	if m.err != nil {
		return nil, m.err
	}
	return m.resolution, nil
}

// mockFetcher implements DomainSettingsFetcher for testing.
type mockFetcher struct {
	outcome    domain.DiscoveryOutcome
	err        error
	endpoint   string
	domainName string
}

func (m *mockFetcher) GetDomainSettings(_ context.Context, endpoint, domainName string, _ []string) (domain.DiscoveryOutcome, error) {
	m.endpoint = endpoint
	m.domainName = domainName
	return m.outcome, m.err
}

// mockSynchroniser implements driving.Synchroniser for testing.
type mockSynchroniser struct {
	records  []domain.ChangeRecord
	result   *driving.DrainResult
	drainErr error

	drainedScope  domain.SyncScope
	drainedFolder string
	resetCalls    int
}

func (m *mockSynchroniser) SyncFolderItems(_ context.Context, _ string) (*domain.ChangeFeed, error) {
	return domain.NewChangeFeed(), nil
}

func (m *mockSynchroniser) SyncFolderHierarchy(_ context.Context, _ string) (*domain.ChangeFeed, error) {
	return domain.NewChangeFeed(), nil
}

func (m *mockSynchroniser) Commit(_ context.Context, _ domain.SyncScope, _, _ string) error {
	return nil
}

func (m *mockSynchroniser) Drain(ctx context.Context, scope domain.SyncScope, folderID string, apply driving.ApplyFunc) (*driving.DrainResult, error) {
	m.drainedScope = scope
	m.drainedFolder = folderID
	if m.drainErr != nil {
		return nil, m.drainErr
	}
	for _, r := range m.records {
		if err := apply(ctx, r); err != nil {
			return nil, err
		}
	}
	return m.result, nil
}

func (m *mockSynchroniser) Reset(_ context.Context, _ domain.SyncScope, _ string) error {
	m.resetCalls++
	return nil
}

// mockFactory implements Factory for testing.
type mockFactory struct {
	resolver *mockAutodiscoverer
	fetcher  *mockFetcher
	syncer   *mockSynchroniser

	lastSettings *domain.AppSettings
	lastEwsURL   string
}

func (m *mockFactory) Autodiscoverer(settings *domain.AppSettings) (driving.Autodiscoverer, error) {
	m.lastSettings = settings
	return m.resolver, nil
}

func (m *mockFactory) DomainSettings(settings *domain.AppSettings) (DomainSettingsFetcher, error) {
	m.lastSettings = settings
	return m.fetcher, nil
}

func (m *mockFactory) Synchroniser(settings *domain.AppSettings, ewsURL string) (driving.Synchroniser, error) {
	m.lastSettings = settings
	m.lastEwsURL = ewsURL
	return m.syncer, nil
}

// testSettings returns valid settings that need no credentials.
func testSettings() *domain.AppSettings {
	s := domain.DefaultAppSettings()
	s.Account.EmailAddress = "alice@example.com"
	s.Auth.Method = domain.AuthMethodNone
	return &s
}

// setupServices injects mocks and restores the previous services on cleanup.
func setupServices(t *testing.T, settings driving.SettingsService, f Factory) {
	t.Helper()
	oldSettings, oldFactory := settingsService, factory
	settingsService = settings
	factory = f
	t.Cleanup(func() {
		settingsService = oldSettings
		factory = oldFactory
	})
}

// execute runs the root command and returns stdout and stderr.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags(rootCmd)

	outBuf, errBuf := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err = rootCmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// resetFlags restores flag defaults, since cobra keeps parsed values
// between executions of the same command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
