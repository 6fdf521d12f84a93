package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driving"
	"github.com/custodia-labs/ewsync/internal/logger"
)

var syncCmd = &cobra.Command{
	Use:   "sync [folder]",
	Short: "Synchronise a folder incrementally",
	Long: `Fetches every pending change of a folder, printing each one, and stores
the sync-state token after each page so the next run continues from there.

The folder is a distinguished name such as inbox or calendar, or a folder ID.
Without an argument sync.folder is used. The EWS endpoint is account.ews_url
or, when that is unset, the result of autodiscover for account.email.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

var syncFlags struct {
	hierarchy  bool
	reset      bool
	ewsURL     string
	maxChanges int
	quiet      bool
}

func init() {
	f := syncCmd.Flags()
	f.BoolVar(&syncFlags.hierarchy, "hierarchy", false, "synchronise the folder hierarchy instead of items")
	f.BoolVar(&syncFlags.reset, "reset", false, "forget the stored token and start a full sync")
	f.StringVar(&syncFlags.ewsURL, "ews-url", "", "EWS endpoint, skipping autodiscover")
	f.IntVar(&syncFlags.maxChanges, "max-changes", 0, "changes per page (1-512)")
	f.BoolVarP(&syncFlags.quiet, "quiet", "q", false, "print only the summary")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if factory == nil {
		return fmt.Errorf("synchronisation not configured")
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("ews-url") {
		settings.Account.EwsURL = syncFlags.ewsURL
	}
	if cmd.Flags().Changed("max-changes") {
		settings.Sync.MaxChangesReturned = syncFlags.maxChanges
	}
	if len(args) > 0 {
		settings.Sync.Folder = args[0]
	}
	if err := settingsService.Validate(settings); err != nil {
		return err
	}
	if err := applyCredentials(cmd, settings); err != nil {
		return err
	}

	ctx := cmd.Context()
	endpoint, err := resolveEndpoint(ctx, settings)
	if err != nil {
		return err
	}

	syncer, err := factory.Synchroniser(settings, endpoint)
	if err != nil {
		return err
	}

	scope := domain.ScopeItems
	if syncFlags.hierarchy {
		scope = domain.ScopeHierarchy
	}
	folder := settings.Sync.Folder

	if syncFlags.reset {
		if err := syncer.Reset(ctx, scope, folder); err != nil {
			return fmt.Errorf("reset sync state: %w", err)
		}
		cmd.Println(mutedStyle.Render("Stored sync state cleared"))
	}

	var apply driving.ApplyFunc = func(_ context.Context, record domain.ChangeRecord) error {
		if !syncFlags.quiet {
			cmd.Println(formatChange(record))
		}
		return nil
	}

	result, err := syncer.Drain(ctx, scope, folder, apply)
	if err != nil {
		return err
	}

	if result.Resynced {
		cmd.PrintErrln(warningStyle.Render("Stored sync state was rejected by the server; a full sync was performed"))
	}
	cmd.Println(successStyle.Render(fmt.Sprintf("Synchronised %s (%s): %d changes in %d pages", folder, scope, result.Changes, result.Pages)))
	return nil
}

// resolveEndpoint returns the configured EWS URL or runs autodiscover.
func resolveEndpoint(ctx context.Context, settings *domain.AppSettings) (string, error) {
	if settings.Account.EwsURL != "" {
		return settings.Account.EwsURL, nil
	}
	if settings.Account.EmailAddress == "" {
		return "", fmt.Errorf("%w: set account.ews_url or account.email", domain.ErrInvalidInput)
	}

	resolver, err := factory.Autodiscoverer(settings)
	if err != nil {
		return "", err
	}
	res, err := resolver.Resolve(ctx, settings.Account.EmailAddress)
	if err != nil {
		return "", fmt.Errorf("autodiscover: %w", err)
	}
	endpoint := res.Settings.EwsURL()
	if endpoint == "" {
		return "", fmt.Errorf("autodiscover for %s returned no EWS URL", res.EmailAddress)
	}
	logger.Info("Using EWS endpoint %s", endpoint)
	return endpoint, nil
}

// formatChange renders one change on a single line.
func formatChange(record domain.ChangeRecord) string {
	id := shortID(record.ID().ID)
	switch record.Type() {
	case domain.ChangeCreate, domain.ChangeUpdate:
		obj := record.Object()
		line := fmt.Sprintf("%-14s %-14s %s", record.Type(), obj.Kind, id)
		if name := displayName(obj); name != "" {
			line += "  " + name
		}
		return line
	case domain.ChangeReadFlagChange:
		state := "unread"
		if record.IsRead() {
			state = "read"
		}
		return fmt.Sprintf("%-14s %-14s %s", record.Type(), state, id)
	default:
		return fmt.Sprintf("%-14s %-14s %s", record.Type(), "", id)
	}
}

func displayName(obj *domain.ServiceObject) string {
	if v := obj.Property("Subject"); v != "" {
		return v
	}
	return obj.Property("DisplayName")
}

// shortID trims long EWS identifiers for display.
func shortID(id string) string {
	const keep = 12
	if len(id) <= 2*keep+3 {
		return mutedStyle.Render(id)
	}
	return mutedStyle.Render(id[:keep] + "..." + id[len(id)-keep:])
}
