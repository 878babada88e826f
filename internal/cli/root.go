package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brackenforge/webarchiver/internal/build"
	"github.com/brackenforge/webarchiver/internal/config"
	"github.com/brackenforge/webarchiver/internal/engine"
	"github.com/brackenforge/webarchiver/internal/ssrfguard"
	"github.com/brackenforge/webarchiver/pkg/urlutil"
	"github.com/spf13/cobra"
)

var (
	cfgFile           string
	seedURL           string
	scope             string
	customDomains     []string
	includePaths      []string
	excludePaths      []string
	unlimitedMode     bool
	maxDepth          int
	maxPages          int
	maxFileSize       int64
	maxTotalSize      int64
	disabledTypes     []string
	concurrency       int
	delayMs           int
	timeoutMs         int
	userAgent         string
	cookies           []string
	respectRobotsTxt  bool
	followRedirects   bool
	maxRedirects      int
	allowedProtocols  []string
	maxAttempt        int
	backoffInitial    time.Duration
	backoffMultiplier float64
	backoffMax        time.Duration
	outputDir         string
	dryRun            bool
)

// parseScope converts the --scope flag into a urlutil.Scope, defaulting to
// same-host on an unrecognised value.
func parseScope(s string) urlutil.Scope {
	switch s {
	case "same-domain":
		return urlutil.ScopeSameDomain
	case "subdomains":
		return urlutil.ScopeSubdomains
	case "custom":
		return urlutil.ScopeCustom
	default:
		return urlutil.ScopeSameHost
	}
}

func parseDisabledCategories(names []string) map[urlutil.Category]bool {
	disabled := make(map[urlutil.Category]bool, len(names))
	for _, n := range names {
		disabled[urlutil.Category(strings.ToLower(n))] = false
	}
	return disabled
}

func parseProtocols(names []string) []ssrfguard.Protocol {
	protocols := make([]ssrfguard.Protocol, 0, len(names))
	for _, n := range names {
		protocols = append(protocols, ssrfguard.Protocol(strings.ToLower(n)))
	}
	return protocols
}

// parseCookieFlags turns "name=value" pairs into *http.Cookie, scoped later
// to the seed host by the fetcher's cookie jar.
func parseCookieFlags(raw []string) ([]*http.Cookie, error) {
	header := http.Header{}
	for _, r := range raw {
		header.Add("Cookie", r)
	}
	req := http.Request{Header: header}
	parsed := req.Cookies()
	if len(parsed) != len(raw) {
		return nil, fmt.Errorf("malformed cookie pair in %v", raw)
	}
	return parsed, nil
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "webarchiver",
	Short:   "A local-only, SSRF-aware offline website archiver.",
	Version: build.FullVersion(),
	Long: `webarchiver crawls a single website starting from a seed URL and
mirrors it to local disk: pages within the crawl scope, plus the
stylesheets, scripts, and other assets they reference from any host, are
fetched, stored under an output directory, and rewritten so the result
browses correctly offline.

The crawl respects robots.txt and refuses to fetch anything that resolves
to a private, loopback, or link-local address.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := InitConfigWithError()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		e, eerr := engine.New(cfg)
		if eerr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", eerr)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if startErr := e.Start(ctx); startErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", startErr)
			os.Exit(1)
		}

		go printProgress(e)

		<-e.Done()

		result := e.Result()
		fmt.Printf("\ncrawl finished: success=%t pages=%d assets=%d bytes=%d duration=%s\n",
			result.Success, result.Pages, result.Assets, result.Bytes, result.Duration)
		if len(result.Errors) > 0 {
			fmt.Printf("%d error(s) recorded; see output above\n", len(result.Errors))
		}
		if !result.Success {
			os.Exit(1)
		}
	},
}

// printProgress drains the engine's event channel until it closes at Done,
// printing one line per event.
func printProgress(e *engine.Engine) {
	for ev := range e.Events() {
		fmt.Printf("[%s] %s\n", ev.Level, ev.Message)
	}
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringVar(&seedURL, "seed-url", "", "starting URL for the crawl (required)")
	rootCmd.PersistentFlags().StringVar(&scope, "scope", "same-host", "crawl scope: same-host, same-domain, subdomains, custom")
	rootCmd.PersistentFlags().StringArrayVar(&customDomains, "custom-domain", []string{}, "additional domain allowed when --scope=custom (can be repeated)")
	rootCmd.PersistentFlags().StringArrayVar(&includePaths, "include-path", []string{}, "glob pattern a page's full URL must match to be crawled (can be repeated)")
	rootCmd.PersistentFlags().StringArrayVar(&excludePaths, "exclude-path", []string{}, "glob pattern excluding pages whose full URL matches from the crawl (can be repeated)")
	rootCmd.PersistentFlags().BoolVar(&unlimitedMode, "unlimited", false, "ignore max-depth and max-pages")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 0, "maximum link depth from seed URL (0 keeps the config default)")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 keeps the config default)")
	rootCmd.PersistentFlags().Int64Var(&maxFileSize, "max-file-size", 0, "maximum size in bytes for a single fetched file (0 keeps the config default)")
	rootCmd.PersistentFlags().Int64Var(&maxTotalSize, "max-total-size", 0, "maximum total bytes written to the output directory (0 keeps the config default)")
	rootCmd.PersistentFlags().StringArrayVar(&disabledTypes, "disable-type", []string{}, "asset category to skip: html, css, js, images, fonts, media, documents, other (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "number of concurrent fetch workers (0 keeps the config default)")
	rootCmd.PersistentFlags().IntVar(&delayMs, "delay-ms", 0, "base delay in milliseconds between requests to the same host (0 keeps the config default)")
	rootCmd.PersistentFlags().IntVar(&timeoutMs, "timeout-ms", 0, "HTTP request timeout in milliseconds (0 keeps the config default)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().StringArrayVar(&cookies, "cookie", []string{}, "name=value cookie sent with every request (can be repeated)")
	rootCmd.PersistentFlags().BoolVar(&respectRobotsTxt, "respect-robots-txt", true, "honor robots.txt disallow rules")
	rootCmd.PersistentFlags().BoolVar(&followRedirects, "follow-redirects", true, "follow HTTP redirects")
	rootCmd.PersistentFlags().IntVar(&maxRedirects, "max-redirects", 0, "maximum redirect hops to follow (0 keeps the config default)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedProtocols, "allowed-protocol", []string{}, "URL scheme allowed for fetches: http, https (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxAttempt, "max-attempt", 0, "maximum fetch attempts per URL before giving up (0 keeps the config default)")
	rootCmd.PersistentFlags().DurationVar(&backoffInitial, "backoff-initial", 0, "initial retry backoff duration (0 keeps the config default)")
	rootCmd.PersistentFlags().Float64Var(&backoffMultiplier, "backoff-multiplier", 0, "retry backoff growth multiplier (0 keeps the config default)")
	rootCmd.PersistentFlags().DurationVar(&backoffMax, "backoff-max", 0, "maximum retry backoff duration (0 keeps the config default)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "root output directory for crawled content")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "crawl without writing output")
}

// InitConfig reads in config file and flag values, exiting on error. Kept
// for callers that want a non-error-returning entry point.
func InitConfig() config.Config {
	cfg, err := InitConfigWithError()
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError builds a config.Config from --config-file if set, or
// from the CLI flags otherwise. seedURL is mandatory unless a config file
// supplies one.
func InitConfigWithError() (config.Config, error) {
	if cfgFile != "" {
		fmt.Printf("Initializing config from file: %s\n", cfgFile)
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	if seedURL == "" {
		return config.Config{}, fmt.Errorf("%w: --seed-url is required", config.ErrInvalidConfig)
	}
	parsed, err := url.Parse(seedURL)
	if err != nil {
		return config.Config{}, fmt.Errorf("%w: seed-url: %s", config.ErrInvalidConfig, err)
	}

	fmt.Println("No config file specified. Using default flag values.")

	configBuilder := config.WithDefault(*parsed).WithScope(parseScope(scope))

	if len(customDomains) > 0 {
		configBuilder = configBuilder.WithCustomDomains(customDomains)
	}
	if len(includePaths) > 0 {
		configBuilder = configBuilder.WithIncludePaths(includePaths)
	}
	if len(excludePaths) > 0 {
		configBuilder = configBuilder.WithExcludePaths(excludePaths)
	}
	if unlimitedMode {
		configBuilder = configBuilder.WithUnlimitedMode(unlimitedMode)
	}
	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}
	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}
	if maxFileSize > 0 {
		configBuilder = configBuilder.WithMaxFileSize(maxFileSize)
	}
	if maxTotalSize > 0 {
		configBuilder = configBuilder.WithMaxTotalSize(maxTotalSize)
	}
	if len(disabledTypes) > 0 {
		configBuilder = configBuilder.WithFileTypes(parseDisabledCategories(disabledTypes))
	}
	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}
	if delayMs > 0 {
		configBuilder = configBuilder.WithDelayMs(delayMs)
	}
	if timeoutMs > 0 {
		configBuilder = configBuilder.WithTimeoutMs(timeoutMs)
	}
	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}
	if len(cookies) > 0 {
		parsedCookies, cerr := parseCookieFlags(cookies)
		if cerr != nil {
			return config.Config{}, fmt.Errorf("%w: %s", config.ErrInvalidConfig, cerr)
		}
		configBuilder = configBuilder.WithCookies(parsedCookies)
	}
	configBuilder = configBuilder.WithRespectRobotsTxt(respectRobotsTxt)
	configBuilder = configBuilder.WithFollowRedirects(followRedirects)
	if maxRedirects > 0 {
		configBuilder = configBuilder.WithMaxRedirects(maxRedirects)
	}
	if len(allowedProtocols) > 0 {
		configBuilder = configBuilder.WithAllowedProtocols(parseProtocols(allowedProtocols))
	}
	if maxAttempt > 0 {
		configBuilder = configBuilder.WithMaxAttempt(maxAttempt)
	}
	if backoffInitial > 0 {
		configBuilder = configBuilder.WithBackoffInitialDuration(backoffInitial)
	}
	if backoffMultiplier > 0 {
		configBuilder = configBuilder.WithBackoffMultiplier(backoffMultiplier)
	}
	if backoffMax > 0 {
		configBuilder = configBuilder.WithBackoffMaxDuration(backoffMax)
	}
	if outputDir != "" && outputDir != "output" {
		configBuilder = configBuilder.WithOutputDir(outputDir)
	}
	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	seedURL = ""
	scope = "same-host"
	customDomains = []string{}
	includePaths = []string{}
	excludePaths = []string{}
	unlimitedMode = false
	maxDepth = 0
	maxPages = 0
	maxFileSize = 0
	maxTotalSize = 0
	disabledTypes = []string{}
	concurrency = 0
	delayMs = 0
	timeoutMs = 0
	userAgent = ""
	cookies = []string{}
	respectRobotsTxt = true
	followRedirects = true
	maxRedirects = 0
	allowedProtocols = []string{}
	maxAttempt = 0
	backoffInitial = 0
	backoffMultiplier = 0
	backoffMax = 0
	outputDir = ""
	dryRun = false
}

// Test helper functions to set flag values from tests.
func SetConfigFileForTest(path string)            { cfgFile = path }
func SetSeedURLForTest(u string)                  { seedURL = u }
func SetScopeForTest(s string)                    { scope = s }
func SetCustomDomainsForTest(d []string)          { customDomains = d }
func SetIncludePathsForTest(p []string)           { includePaths = p }
func SetExcludePathsForTest(p []string)           { excludePaths = p }
func SetUnlimitedModeForTest(u bool)              { unlimitedMode = u }
func SetMaxDepthForTest(depth int)                { maxDepth = depth }
func SetMaxPagesForTest(pages int)                { maxPages = pages }
func SetMaxFileSizeForTest(n int64)               { maxFileSize = n }
func SetMaxTotalSizeForTest(n int64)              { maxTotalSize = n }
func SetDisabledTypesForTest(t []string)          { disabledTypes = t }
func SetConcurrencyForTest(conc int)              { concurrency = conc }
func SetDelayMsForTest(ms int)                    { delayMs = ms }
func SetTimeoutMsForTest(ms int)                  { timeoutMs = ms }
func SetUserAgentForTest(agent string)            { userAgent = agent }
func SetCookiesForTest(c []string)                { cookies = c }
func SetRespectRobotsTxtForTest(respect bool)     { respectRobotsTxt = respect }
func SetFollowRedirectsForTest(follow bool)       { followRedirects = follow }
func SetMaxRedirectsForTest(max int)              { maxRedirects = max }
func SetAllowedProtocolsForTest(p []string)       { allowedProtocols = p }
func SetMaxAttemptForTest(n int)                  { maxAttempt = n }
func SetBackoffInitialForTest(d time.Duration)    { backoffInitial = d }
func SetBackoffMultiplierForTest(m float64)       { backoffMultiplier = m }
func SetBackoffMaxForTest(d time.Duration)        { backoffMax = d }
func SetOutputDirForTest(dir string)              { outputDir = dir }
func SetDryRunForTest(dry bool)                   { dryRun = dry }
