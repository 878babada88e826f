package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/brackenforge/webarchiver/internal/frontier"
	"github.com/brackenforge/webarchiver/internal/ssrfguard"
	"github.com/brackenforge/webarchiver/pkg/urlutil"
)

// Config is CrawlConfig: the full set of knobs governing one archive run,
// built through the WithX(...) chain below and validated by Build.
type Config struct {
	//===============
	//  Crawl scope
	//===============
	seedURL       url.URL
	scope         urlutil.Scope
	customDomains []string
	includePaths  []string
	excludePaths  []string

	//===============
	// Limits
	//===============
	unlimitedMode bool
	maxDepth      int
	maxPages      int
	maxFileSize   int64
	maxTotalSize  int64
	fileTypes     map[urlutil.Category]bool

	//===============
	// Politeness / fetch
	//===============
	concurrency int
	delayMs     int
	timeoutMs   int
	userAgent   string
	cookies     []*http.Cookie

	//===============
	// Policy
	//===============
	respectRobotsTxt bool
	followRedirects  bool
	maxRedirects     int
	allowedProtocols []ssrfguard.Protocol

	//===============
	// Retry / backoff
	//===============
	maxAttempt             int
	backoffInitialDuration time.Duration
	backoffMultiplier      float64
	backoffMaxDuration     time.Duration

	//===============
	// Output
	//===============
	outputDir string
	dryRun    bool
}

// configDTO is the JSON wire shape accepted by WithConfigFile, covering
// every CrawlConfig option. Zero-value fields are left at WithDefault's
// values by newConfigFromDTO's override-only-if-nonzero pass.
type configDTO struct {
	SeedURL          string   `json:"seedUrl"`
	Scope            string   `json:"scope,omitempty"`
	CustomDomains    []string `json:"customDomains,omitempty"`
	IncludePaths     []string `json:"includePaths,omitempty"`
	ExcludePaths     []string `json:"excludePaths,omitempty"`
	UnlimitedMode    bool     `json:"unlimitedMode,omitempty"`
	MaxDepth         int      `json:"maxDepth,omitempty"`
	MaxPages         int      `json:"maxPages,omitempty"`
	MaxFileSize      int64    `json:"maxFileSize,omitempty"`
	MaxTotalSize     int64    `json:"maxTotalSize,omitempty"`
	FileTypes        []string `json:"fileTypes,omitempty"`
	Concurrency      int      `json:"concurrency,omitempty"`
	DelayMs          int      `json:"delayMs,omitempty"`
	TimeoutMs        int      `json:"timeoutMs,omitempty"`
	MaxAttempt       int      `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64       `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration `json:"backoffMaxDuration,omitempty"`
	UserAgent        string   `json:"userAgent,omitempty"`
	Cookies          []string `json:"cookies,omitempty"`
	RespectRobotsTxt *bool    `json:"respectRobotsTxt,omitempty"`
	FollowRedirects  *bool    `json:"followRedirects,omitempty"`
	MaxRedirects     int      `json:"maxRedirects,omitempty"`
	AllowedProtocols []string `json:"allowedProtocols,omitempty"`
	OutputDir        string   `json:"outputDir,omitempty"`
	DryRun           bool     `json:"dryRun,omitempty"`
}

func parseScope(s string) (urlutil.Scope, bool) {
	switch s {
	case "same-host":
		return urlutil.ScopeSameHost, true
	case "same-domain":
		return urlutil.ScopeSameDomain, true
	case "subdomains":
		return urlutil.ScopeSubdomains, true
	case "custom":
		return urlutil.ScopeCustom, true
	default:
		return urlutil.ScopeSameHost, false
	}
}

func parseCategory(s string) (urlutil.Category, bool) {
	switch urlutil.Category(s) {
	case urlutil.CategoryHTML, urlutil.CategoryCSS, urlutil.CategoryJS,
		urlutil.CategoryImages, urlutil.CategoryFonts, urlutil.CategoryMedia,
		urlutil.CategoryDocuments, urlutil.CategoryOther:
		return urlutil.Category(s), true
	default:
		return "", false
	}
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	seed, err := url.Parse(dto.SeedURL)
	if err != nil {
		return Config{}, fmt.Errorf("%w: seedUrl: %s", ErrInvalidConfig, err.Error())
	}

	cfg, err := WithDefault(*seed).Build()
	if err != nil {
		return Config{}, err
	}

	if scope, ok := parseScope(dto.Scope); ok {
		cfg.scope = scope
	}
	if len(dto.CustomDomains) > 0 {
		cfg.customDomains = dto.CustomDomains
	}
	cfg.includePaths = dto.IncludePaths
	cfg.excludePaths = dto.ExcludePaths
	cfg.unlimitedMode = dto.UnlimitedMode

	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.MaxFileSize != 0 {
		cfg.maxFileSize = dto.MaxFileSize
	}
	if dto.MaxTotalSize != 0 {
		cfg.maxTotalSize = dto.MaxTotalSize
	}
	if len(dto.FileTypes) > 0 {
		types := make(map[urlutil.Category]bool, len(dto.FileTypes))
		for _, t := range dto.FileTypes {
			if cat, ok := parseCategory(t); ok {
				types[cat] = true
			}
		}
		cfg.fileTypes = types
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.DelayMs != 0 {
		cfg.delayMs = dto.DelayMs
	}
	if dto.TimeoutMs != 0 {
		cfg.timeoutMs = dto.TimeoutMs
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if len(dto.Cookies) > 0 {
		cookies, err := parseCookies(dto.Cookies)
		if err != nil {
			return Config{}, fmt.Errorf("%w: cookies: %s", ErrInvalidConfig, err.Error())
		}
		cfg.cookies = cookies
	}
	if dto.RespectRobotsTxt != nil {
		cfg.respectRobotsTxt = *dto.RespectRobotsTxt
	}
	if dto.FollowRedirects != nil {
		cfg.followRedirects = *dto.FollowRedirects
	}
	if dto.MaxRedirects != 0 {
		cfg.maxRedirects = dto.MaxRedirects
	}
	if len(dto.AllowedProtocols) > 0 {
		protocols := make([]ssrfguard.Protocol, 0, len(dto.AllowedProtocols))
		for _, p := range dto.AllowedProtocols {
			protocols = append(protocols, ssrfguard.Protocol(p))
		}
		cfg.allowedProtocols = protocols
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	cfg.dryRun = dto.DryRun

	return cfg, nil
}

// parseCookies turns "name=value" pairs into *http.Cookie, scoped later
// to the seed host by the fetcher's cookie jar.
func parseCookies(raw []string) ([]*http.Cookie, error) {
	header := http.Header{}
	for _, r := range raw {
		header.Add("Cookie", r)
	}
	req := http.Request{Header: header}
	cookies := req.Cookies()
	if len(cookies) != len(raw) {
		return nil, fmt.Errorf("malformed cookie pair in %v", raw)
	}
	return cookies, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URL and default
// values for all other fields. seedURL's Host must be non-empty.
func WithDefault(seedURL url.URL) *Config {
	defaultConfig := Config{
		seedURL:       seedURL,
		scope:         urlutil.ScopeSameHost,
		customDomains: nil,
		includePaths:  nil,
		excludePaths:  nil,

		unlimitedMode: false,
		maxDepth:      3,
		maxPages:      100,
		maxFileSize:   20 * 1024 * 1024,
		maxTotalSize:  500 * 1024 * 1024,
		fileTypes:     map[urlutil.Category]bool{},

		concurrency: 10,
		delayMs:     1000,
		timeoutMs:   10000,
		userAgent:   "",
		cookies:     nil,

		respectRobotsTxt: true,
		followRedirects:  true,
		maxRedirects:     5,
		allowedProtocols: []ssrfguard.Protocol{ssrfguard.ProtocolHTTP, ssrfguard.ProtocolHTTPS},

		maxAttempt:             5,
		backoffInitialDuration: 200 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,

		outputDir: "output",
		dryRun:    false,
	}
	return &defaultConfig
}

func (c *Config) WithSeedURL(u url.URL) *Config {
	c.seedURL = u
	return c
}

func (c *Config) WithScope(scope urlutil.Scope) *Config {
	c.scope = scope
	return c
}

func (c *Config) WithCustomDomains(domains []string) *Config {
	c.customDomains = domains
	return c
}

func (c *Config) WithIncludePaths(patterns []string) *Config {
	c.includePaths = patterns
	return c
}

func (c *Config) WithExcludePaths(patterns []string) *Config {
	c.excludePaths = patterns
	return c
}

func (c *Config) WithUnlimitedMode(unlimited bool) *Config {
	c.unlimitedMode = unlimited
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithMaxFileSize(bytes int64) *Config {
	c.maxFileSize = bytes
	return c
}

func (c *Config) WithMaxTotalSize(bytes int64) *Config {
	c.maxTotalSize = bytes
	return c
}

func (c *Config) WithFileTypes(disabled map[urlutil.Category]bool) *Config {
	c.fileTypes = disabled
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithDelayMs(delayMs int) *Config {
	c.delayMs = delayMs
	return c
}

func (c *Config) WithTimeoutMs(timeoutMs int) *Config {
	c.timeoutMs = timeoutMs
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithCookies(cookies []*http.Cookie) *Config {
	c.cookies = cookies
	return c
}

func (c *Config) WithRespectRobotsTxt(respect bool) *Config {
	c.respectRobotsTxt = respect
	return c
}

func (c *Config) WithFollowRedirects(follow bool) *Config {
	c.followRedirects = follow
	return c
}

func (c *Config) WithMaxRedirects(max int) *Config {
	c.maxRedirects = max
	return c
}

func (c *Config) WithAllowedProtocols(protocols []ssrfguard.Protocol) *Config {
	c.allowedProtocols = protocols
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) Build() (Config, error) {
	if c.seedURL.Host == "" {
		return Config{}, fmt.Errorf("%w: seedURL must have a host", ErrInvalidConfig)
	}
	if c.scope == urlutil.ScopeCustom && len(c.customDomains) == 0 {
		return Config{}, fmt.Errorf("%w: scope=custom requires customDomains", ErrInvalidConfig)
	}
	if len(c.allowedProtocols) == 0 {
		return Config{}, fmt.Errorf("%w: allowedProtocols cannot be empty", ErrInvalidConfig)
	}
	return *c, nil
}

// FrontierPolicy derives the frontier.Policy this config implies, so the
// engine never has to know CrawlConfig's field layout.
func (c Config) FrontierPolicy() frontier.Policy {
	disabled := make(map[urlutil.Category]bool, len(c.fileTypes))
	for cat, enabled := range c.fileTypes {
		if !enabled {
			disabled[cat] = true
		}
	}
	return frontier.Policy{
		Scope:              c.scope,
		CustomDomains:      c.customDomains,
		IncludePaths:       c.includePaths,
		ExcludePaths:       c.excludePaths,
		DisabledCategories: disabled,
		MaxDepth:           c.maxDepth,
		MaxPages:           c.maxPages,
		UnlimitedMode:      c.unlimitedMode,
		MaxRetries:         c.maxAttempt,
		AssetDepthCushion:  frontier.DefaultAssetDepthCushion,
	}
}

func (c Config) SeedURL() url.URL {
	return c.seedURL
}

func (c Config) Scope() urlutil.Scope {
	return c.scope
}

func (c Config) CustomDomains() []string {
	domains := make([]string, len(c.customDomains))
	copy(domains, c.customDomains)
	return domains
}

func (c Config) IncludePaths() []string {
	paths := make([]string, len(c.includePaths))
	copy(paths, c.includePaths)
	return paths
}

func (c Config) ExcludePaths() []string {
	paths := make([]string, len(c.excludePaths))
	copy(paths, c.excludePaths)
	return paths
}

func (c Config) UnlimitedMode() bool {
	return c.unlimitedMode
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) MaxFileSize() int64 {
	return c.maxFileSize
}

func (c Config) MaxTotalSize() int64 {
	return c.maxTotalSize
}

func (c Config) FileTypes() map[urlutil.Category]bool {
	types := make(map[urlutil.Category]bool, len(c.fileTypes))
	for k, v := range c.fileTypes {
		types[k] = v
	}
	return types
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) DelayMs() int {
	return c.delayMs
}

func (c Config) TimeoutMs() int {
	return c.timeoutMs
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.timeoutMs) * time.Millisecond
}

func (c Config) Delay() time.Duration {
	return time.Duration(c.delayMs) * time.Millisecond
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) Cookies() []*http.Cookie {
	cookies := make([]*http.Cookie, len(c.cookies))
	copy(cookies, c.cookies)
	return cookies
}

func (c Config) RespectRobotsTxt() bool {
	return c.respectRobotsTxt
}

func (c Config) FollowRedirects() bool {
	return c.followRedirects
}

func (c Config) MaxRedirects() int {
	return c.maxRedirects
}

func (c Config) AllowedProtocols() []ssrfguard.Protocol {
	protocols := make([]ssrfguard.Protocol, len(c.allowedProtocols))
	copy(protocols, c.allowedProtocols)
	return protocols
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) DryRun() bool {
	return c.dryRun
}
