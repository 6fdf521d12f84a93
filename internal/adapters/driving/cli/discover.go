package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driving"
	"github.com/custodia-labs/ewsync/internal/core/services"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [email]",
	Short: "Resolve a mailbox to its EWS endpoint",
	Long: `Runs autodiscover for the mailbox, following URL and address redirects
until the server returns user settings. Without an argument the configured
account.email is used.

With --domain, a single GetDomainSettings call is made instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiscover,
}

var discoverFlags struct {
	url         string
	pox         bool
	insecure    bool
	detectLoops bool
	maxHops     int
	noCache     bool
	domain      string
	settings    []string
}

func init() {
	f := discoverCmd.Flags()
	f.StringVar(&discoverFlags.url, "url", "", "autodiscover URL to query first")
	f.BoolVar(&discoverFlags.pox, "pox", false, "use POX autodiscover (autodiscover.xml)")
	f.BoolVar(&discoverFlags.insecure, "insecure", false, "allow redirects to non-HTTPS endpoints")
	f.BoolVar(&discoverFlags.detectLoops, "detect-loops", false, "fail when a redirect revisits a target")
	f.IntVar(&discoverFlags.maxHops, "max-hops", 0, "maximum discovery calls")
	f.BoolVar(&discoverFlags.noCache, "no-cache", false, "bypass the discovery cache")
	f.StringVar(&discoverFlags.domain, "domain", "", "query GetDomainSettings for a domain")
	f.StringSliceVar(&discoverFlags.settings, "setting", nil, "user setting to request (repeatable)")
	rootCmd.AddCommand(discoverCmd)
}

// applyDiscoverFlags overrides settings with explicitly set flags.
func applyDiscoverFlags(cmd *cobra.Command, settings *domain.AppSettings) {
	f := cmd.Flags()
	ad := &settings.Autodiscover
	if f.Changed("url") {
		ad.URL = discoverFlags.url
	}
	if f.Changed("pox") && discoverFlags.pox {
		ad.Protocol = domain.DiscoveryPOX
	}
	if f.Changed("insecure") {
		ad.AllowInsecureRedirects = discoverFlags.insecure
	}
	if f.Changed("detect-loops") {
		ad.DetectRedirectLoops = discoverFlags.detectLoops
	}
	if f.Changed("max-hops") {
		ad.MaxHops = discoverFlags.maxHops
	}
	if f.Changed("no-cache") && discoverFlags.noCache {
		ad.CacheTTL = 0
	}
	if f.Changed("setting") {
		ad.Settings = discoverFlags.settings
	}
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if factory == nil {
		return fmt.Errorf("autodiscover not configured")
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	applyDiscoverFlags(cmd, settings)
	if err := settingsService.Validate(settings); err != nil {
		return err
	}
	if err := applyCredentials(cmd, settings); err != nil {
		return err
	}

	if discoverFlags.domain != "" {
		return runDomainDiscover(cmd, settings, discoverFlags.domain)
	}

	email := settings.Account.EmailAddress
	if len(args) > 0 {
		email = args[0]
	}
	if email == "" {
		return fmt.Errorf("%w: no e-mail address given and account.email is not set", domain.ErrInvalidInput)
	}

	resolver, err := factory.Autodiscoverer(settings)
	if err != nil {
		return err
	}
	res, err := resolver.Resolve(cmd.Context(), email)
	if err != nil {
		printDiscoveryFailure(cmd, err)
		return err
	}

	printResolution(cmd, res)
	return nil
}

func runDomainDiscover(cmd *cobra.Command, settings *domain.AppSettings, domainName string) error {
	fetcher, err := factory.DomainSettings(settings)
	if err != nil {
		return err
	}
	outcome, err := fetcher.GetDomainSettings(cmd.Context(), settings.Autodiscover.URL, domainName, settings.Autodiscover.Settings)
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case domain.OutcomeSuccess:
		cmd.Println(titleStyle.Render("Domain settings for " + domainName))
		printSettings(cmd, outcome.Settings)
		return nil
	case domain.OutcomeRedirectToURL, domain.OutcomeRedirectToAddress:
		cmd.Println(warningStyle.Render(fmt.Sprintf("Redirected (%s) to %s", outcome.Kind, outcome.RedirectTarget)))
		return nil
	default:
		err := services.OutcomeError(outcome)
		printDiscoveryFailure(cmd, err)
		return err
	}
}

func printResolution(cmd *cobra.Command, res *driving.Resolution) {
	cmd.Println(titleStyle.Render("Autodiscover resolved " + res.EmailAddress))
	cmd.Println(keyValue("EWS URL", orUnset(res.Settings.EwsURL())))
	cmd.Println(keyValue("Autodiscover URL", orDefault(res.URL, "derived from e-mail domain")))
	hops := fmt.Sprint(res.HopsTaken)
	if res.FromCache {
		hops = mutedStyle.Render("cached")
	}
	cmd.Println(keyValue("Hops", hops))
	cmd.Println()
	printSettings(cmd, res.Settings)
}

func printSettings(cmd *cobra.Command, us *domain.UserSettings) {
	names := make([]string, 0, len(us.Settings))
	for name := range us.Settings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cmd.Println(keyValue(name, us.Settings[name]))
	}
	for _, e := range us.Errors {
		cmd.Println(warningStyle.Render(fmt.Sprintf("  %s: %s %s", e.SettingName, e.Code, e.Message)))
	}
}

// printDiscoveryFailure explains a failed resolution on stderr.
func printDiscoveryFailure(cmd *cobra.Command, err error) {
	re, ok := domain.AsRemoteError(err)
	if !ok {
		return
	}
	var hint string
	switch re.Class {
	case domain.Retryable:
		hint = "the server is busy, try again later"
	case domain.TerminalClient:
		hint = "check the e-mail address and requested settings"
	default:
		hint = "the autodiscover service failed"
	}
	cmd.PrintErrln(errorStyle.Render(fmt.Sprintf("%s: %s", re.Code, hint)))
	if re.DebugData != "" {
		cmd.PrintErrln(mutedStyle.Render(re.DebugData))
	}
}
