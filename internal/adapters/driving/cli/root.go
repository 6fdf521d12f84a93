package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driving"
	"github.com/custodia-labs/ewsync/internal/logger"
)

var (
	// Version is set by goreleaser ldflags.
	version = "dev"

	// Verbose enables debug logging.
	verbose bool

	// trace dumps EWS request and response bodies.
	trace bool

	// Services holds injected service implementations for CLI commands.
	settingsService driving.SettingsService
	factory         Factory
)

// DomainSettingsFetcher issues GetDomainSettings calls.
type DomainSettingsFetcher interface {
	GetDomainSettings(ctx context.Context, endpoint, domainName string, settings []string) (domain.DiscoveryOutcome, error)
}

// Factory builds EWS services for the effective settings of one command.
// Settings are only known after flags and credentials are applied, so
// services are built per command rather than injected ready-made.
type Factory interface {
	// Autodiscoverer returns a resolver configured from settings.
	Autodiscoverer(settings *domain.AppSettings) (driving.Autodiscoverer, error)

	// DomainSettings returns a GetDomainSettings client configured from settings.
	DomainSettings(settings *domain.AppSettings) (DomainSettingsFetcher, error)

	// Synchroniser returns a sync service bound to the EWS endpoint.
	Synchroniser(settings *domain.AppSettings, ewsURL string) (driving.Synchroniser, error)
}

// Services holds configuration for CLI commands.
type Services struct {
	Settings driving.SettingsService
	Factory  Factory
}

// SetServices injects service implementations for CLI commands.
func SetServices(s *Services) {
	if s == nil {
		return
	}
	settingsService = s.Settings
	factory = s.Factory
}

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "ewsync",
	Short: "Exchange Web Services autodiscover and folder synchronisation",
	Long: `ewsync resolves a mailbox to its Exchange Web Services endpoint through
autodiscover and synchronises folders incrementally with SyncFolderItems and
SyncFolderHierarchy.

Configuration is read from ~/.ewsync/config.toml.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, usually cancelled on interrupt.
func ExecuteContext(ctx context.Context) error {
	// cmd.Println writes to stderr unless an output is set.
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "dump EWS request and response XML (implies --verbose)")

	// Use PersistentPreRunE to set verbose mode before any command executes
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		logger.SetTrace(trace)
		return nil
	}
}
