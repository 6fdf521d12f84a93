package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and check application settings",
	Long: `View the effective settings read from ~/.ewsync/config.toml.

Secrets may instead be supplied through the EWSYNC_PASSWORD and
EWSYNC_CLIENT_SECRET environment variables.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check settings for consistency",
	RunE:  runSettingsValidate,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsValidateCmd)
	rootCmd.AddCommand(settingsCmd)
}

// loadSettings reads the stored settings.
func loadSettings() (*domain.AppSettings, error) {
	if settingsService == nil {
		return nil, errors.New("settings service not configured")
	}
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	cmd.Println(titleStyle.Render("Current Settings"))
	cmd.Println()

	cmd.Println(keyStyle.Render("[Account]"))
	cmd.Println(keyValue("E-mail", orUnset(settings.Account.EmailAddress)))
	cmd.Println(keyValue("EWS URL", orUnset(settings.Account.EwsURL)))
	cmd.Println(keyValue("Impersonate", orUnset(settings.Account.ImpersonatedAddress)))
	cmd.Println()

	ad := settings.Autodiscover
	cmd.Println(keyStyle.Render("[Autodiscover]"))
	cmd.Println(keyValue("URL", orDefault(ad.URL, "derived from e-mail domain")))
	cmd.Println(keyValue("Protocol", ad.Protocol.String()))
	cmd.Println(keyValue("Max hops", fmt.Sprint(ad.MaxHops)))
	cmd.Println(keyValue("Insecure redirects", yesNo(ad.AllowInsecureRedirects)))
	cmd.Println(keyValue("Detect redirect loops", yesNo(ad.DetectRedirectLoops)))
	cmd.Println(keyValue("Cache TTL", ad.CacheTTL.String()))
	cmd.Println(keyValue("Requested settings", strings.Join(ad.Settings, ", ")))
	cmd.Println()

	cmd.Println(keyStyle.Render("[Sync]"))
	cmd.Println(keyValue("Folder", settings.Sync.Folder))
	cmd.Println(keyValue("Max changes", fmt.Sprint(settings.Sync.MaxChangesReturned)))
	cmd.Println()

	tr := settings.Transport
	cmd.Println(keyStyle.Render("[Transport]"))
	cmd.Println(keyValue("Timeout", tr.Timeout.String()))
	cmd.Println(keyValue("Requests per second", fmt.Sprint(tr.RequestsPerSecond)))
	cmd.Println(keyValue("Burst", fmt.Sprint(tr.Burst)))
	cmd.Println(keyValue("Server version", orDefault(tr.ServerVersion, "client default")))
	cmd.Println()

	auth := settings.Auth
	cmd.Println(keyStyle.Render("[Auth]"))
	cmd.Println(keyValue("Method", string(auth.Method)))
	switch auth.Method {
	case domain.AuthMethodBasic:
		cmd.Println(keyValue("Username", orUnset(auth.Username)))
		cmd.Println(keyValue("Password", maskSecret(auth.Password)))
	case domain.AuthMethodOAuth:
		cmd.Println(keyValue("Tenant", orUnset(auth.OAuth.TenantID)))
		cmd.Println(keyValue("Client ID", orUnset(auth.OAuth.ClientID)))
		cmd.Println(keyValue("Client secret", maskSecret(auth.OAuth.ClientSecret)))
		if auth.OAuth.TokenURL != "" {
			cmd.Println(keyValue("Token URL", auth.OAuth.TokenURL))
		}
	}

	return nil
}

func runSettingsValidate(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if err := settingsService.Validate(settings); err != nil {
		cmd.Println(errorStyle.Render("Settings are invalid"))
		return err
	}
	cmd.Println(successStyle.Render("Settings are valid"))
	return nil
}

func orUnset(s string) string {
	return orDefault(s, "(not set)")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return mutedStyle.Render(fallback)
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
