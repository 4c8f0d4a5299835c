// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Site       SiteConfig       `mapstructure:"site" yaml:"site"`
	Locators   LocatorConfig    `mapstructure:"locators" yaml:"locators"`
	Executor   ExecutorConfig   `mapstructure:"executor" yaml:"executor"`
	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector"`
	Login      LoginConfig      `mapstructure:"login" yaml:"login"`
	Controller ControllerConfig `mapstructure:"controller" yaml:"controller"`
}

// LoggerConfig controls the zap logger bootstrap.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the browser process.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// SessionConfig controls the persisted-state store.
type SessionConfig struct {
	StateFile string `mapstructure:"state_file" yaml:"state_file"`
}

// SiteConfig carries everything the auth verifier needs to know about the
// target application. All of it is data, none of it is code, so pointing the
// tool at a different site is a config change.
type SiteConfig struct {
	HomeURL  string `mapstructure:"home_url" yaml:"home_url"`
	LoginURL string `mapstructure:"login_url" yaml:"login_url"`
	InboxURL string `mapstructure:"inbox_url" yaml:"inbox_url"`

	// Domains the auth cookies may be scoped to.
	Domains []string `mapstructure:"domains" yaml:"domains"`
	// AuthCookieNames are cookie names whose presence implies a login.
	AuthCookieNames []string `mapstructure:"auth_cookie_names" yaml:"auth_cookie_names"`
	// StorageKeyMarkers are substrings of local-storage keys that carry
	// session tokens (matched case-insensitively).
	StorageKeyMarkers []string `mapstructure:"storage_key_markers" yaml:"storage_key_markers"`
	// LoggedInMarkers / LoggedOutMarkers are DOM locators whose visibility
	// signals the respective state.
	LoggedInMarkers  []string `mapstructure:"logged_in_markers" yaml:"logged_in_markers"`
	LoggedOutMarkers []string `mapstructure:"logged_out_markers" yaml:"logged_out_markers"`
	// ProtectedRoute is a URL known to require authentication; used by the
	// navigational probe tier.
	ProtectedRoute string `mapstructure:"protected_route" yaml:"protected_route"`
	// LoginURLFragment marks a URL as belonging to the login flow.
	LoginURLFragment string `mapstructure:"login_url_fragment" yaml:"login_url_fragment"`
	// AuthPathPrefixes are URL path fragments only reachable when logged in.
	AuthPathPrefixes []string `mapstructure:"auth_path_prefixes" yaml:"auth_path_prefixes"`
}

// LocatorConfig holds the ordered candidate-locator lists for every logical
// UI target, most specific first, plus the field selectors for snapshot
// parsing. Order matters everywhere: the executor accepts the first
// candidate that is visible and enabled.
type LocatorConfig struct {
	// EntryItem is a template; the 1-based entry position is substituted
	// for %d to address one list item.
	EntryItem []string `mapstructure:"entry_item" yaml:"entry_item"`
	// DetailLink activates the detail destination inside an open entry.
	DetailLink []string `mapstructure:"detail_link" yaml:"detail_link"`
	// MessageInput / SendButton drive the reply flow.
	MessageInput []string `mapstructure:"message_input" yaml:"message_input"`
	SendButton   []string `mapstructure:"send_button" yaml:"send_button"`
	// ExpandDescription reveals collapsed detail text before extraction.
	ExpandDescription []string `mapstructure:"expand_description" yaml:"expand_description"`

	Entries EntrySelectors `mapstructure:"entries" yaml:"entries"`
	Detail  DetailSelectors `mapstructure:"detail" yaml:"detail"`
}

// EntrySelectors are the goquery selectors for the inbox list snapshot.
type EntrySelectors struct {
	Item        string `mapstructure:"item" yaml:"item"`
	Name        string `mapstructure:"name" yaml:"name"`
	NameBox     string `mapstructure:"name_box" yaml:"name_box"`
	LastMessage string `mapstructure:"last_message" yaml:"last_message"`
	Time        string `mapstructure:"time" yaml:"time"`
	UnreadBadge string `mapstructure:"unread_badge" yaml:"unread_badge"`
}

// DetailSelectors are the goquery selectors for a detail-page snapshot.
type DetailSelectors struct {
	Title       string `mapstructure:"title" yaml:"title"`
	Salary      string `mapstructure:"salary" yaml:"salary"`
	InfoDesc    string `mapstructure:"info_desc" yaml:"info_desc"`
	Tags        string `mapstructure:"tags" yaml:"tags"`
	Description string `mapstructure:"description" yaml:"description"`
	CompanyInfo string `mapstructure:"company_info" yaml:"company_info"`
	WorkAddress string `mapstructure:"work_address" yaml:"work_address"`
}

// ExecutorConfig tunes the UI-action retry loop.
type ExecutorConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	Backoff     time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

// DetectorConfig tunes navigation-outcome detection.
type DetectorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	LoadTimeout  time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	IdleQuiet    time.Duration `mapstructure:"idle_quiet" yaml:"idle_quiet"`
}

// LoginConfig tunes the manual-login bridge.
type LoginConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Deadline     time.Duration `mapstructure:"deadline" yaml:"deadline"`
}

// ControllerConfig tunes batch iteration.
type ControllerConfig struct {
	// EntryInterval is the minimum spacing between entries, enforced with a
	// rate limiter so a burst of fast failures does not hammer the site.
	EntryInterval time.Duration `mapstructure:"entry_interval" yaml:"entry_interval"`
	// BackWait is the settle time after navigating back to the list.
	BackWait time.Duration `mapstructure:"back_wait" yaml:"back_wait"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chatspider")
	v.SetDefault("logger.log_file", "chatspider.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	// Headful by default: manual login needs a visible window.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "browser_data")
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.args", []string{
		"--no-sandbox",
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-first-run",
		"--no-default-browser-check",
	})
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")

	// -- Session --
	v.SetDefault("session.state_file", "session_state.json")

	// -- Site (recruiting chat inbox defaults) --
	v.SetDefault("site.home_url", "https://www.zhipin.com/")
	v.SetDefault("site.login_url", "https://login.zhipin.com/login")
	v.SetDefault("site.inbox_url", "https://www.zhipin.com/web/geek/chat")
	v.SetDefault("site.domains", []string{"zhipin.com", ".zhipin.com"})
	v.SetDefault("site.auth_cookie_names", []string{
		"wt2", "bst", "__zp_stoken__", "geek_u", "geek_uid", "zp_token", "sid", "wtk",
	})
	v.SetDefault("site.storage_key_markers", []string{"token", "uid", "user"})
	v.SetDefault("site.logged_in_markers", []string{
		".user-nav", ".user-info", ".nav-user", ".user-avatar", `[data-track="user"]`,
	})
	v.SetDefault("site.logged_out_markers", []string{
		".btn-sign-up", ".login-btn", ".sign-in", `a[href*="login"]`, `[data-track="login"]`,
	})
	v.SetDefault("site.protected_route", "https://www.zhipin.com/web/geek/chat")
	v.SetDefault("site.login_url_fragment", "login")
	v.SetDefault("site.auth_path_prefixes", []string{"/web/user/", "/web/geek/", "/web/boss/"})

	// -- Locators --
	v.SetDefault("locators.entry_item", []string{
		`li[role="listitem"]:nth-child(%d) .friend-content`,
		`li[role="listitem"]:nth-child(%d)`,
		`.chat-user li:nth-child(%d)`,
	})
	v.SetDefault("locators.detail_link", []string{
		".position-content .right-content span",
		`[ka="geek_chat_job_detail"] .right-content span`,
		".position-main .position-content .right-content span",
		".position-content",
		`a[href*="job_detail"]`,
	})
	v.SetDefault("locators.message_input", []string{
		"#chat-input",
		`div.chat-input[contenteditable="true"]`,
		`[contenteditable="true"]`,
		".chat-input",
		".message-input",
		"textarea",
	})
	v.SetDefault("locators.send_button", []string{
		`button[type="send"]`,
		"button.btn-send",
		".btn-send",
		".send-btn",
		`button[type="submit"]`,
	})
	v.SetDefault("locators.expand_description", []string{
		".fold-text", ".expand-btn", ".show-more", ".text-expand",
	})
	v.SetDefault("locators.entries.item", `li[role="listitem"]`)
	v.SetDefault("locators.entries.name", "span.name-text")
	v.SetDefault("locators.entries.name_box", "span.name-box span")
	v.SetDefault("locators.entries.last_message", "span.last-msg-text")
	v.SetDefault("locators.entries.time", "span.time")
	v.SetDefault("locators.entries.unread_badge", "span.notice-badge")
	v.SetDefault("locators.detail.title", ".job-name, .position-head h1, .job-title, h1")
	v.SetDefault("locators.detail.salary", ".salary, .job-salary")
	v.SetDefault("locators.detail.info_desc", ".text-desc")
	v.SetDefault("locators.detail.tags", ".job-keyword-list li")
	v.SetDefault("locators.detail.description", ".job-sec-text, .job-detail-section, .detail-content")
	v.SetDefault("locators.detail.company_info", ".level-list li")
	v.SetDefault("locators.detail.work_address", ".location-address")

	// -- Executor --
	v.SetDefault("executor.max_attempts", 3)
	v.SetDefault("executor.settle_delay", "500ms")
	v.SetDefault("executor.backoff", "2s")

	// -- Detector --
	v.SetDefault("detector.poll_interval", "150ms")
	v.SetDefault("detector.timeout", "8s")
	v.SetDefault("detector.load_timeout", "15s")
	v.SetDefault("detector.idle_quiet", "1500ms")

	// -- Login --
	v.SetDefault("login.poll_interval", "2s")
	v.SetDefault("login.deadline", "5m")

	// -- Controller --
	v.SetDefault("controller.entry_interval", "2s")
	v.SetDefault("controller.back_wait", "2s")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a Config from a viper instance
// that has already read its sources (file, env, flags).
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Site.InboxURL == "" {
		return fmt.Errorf("site.inbox_url is required")
	}
	if c.Site.ProtectedRoute == "" {
		return fmt.Errorf("site.protected_route is required")
	}
	if len(c.Site.Domains) == 0 {
		return fmt.Errorf("site.domains must list at least one domain")
	}
	if c.Executor.MaxAttempts <= 0 {
		return fmt.Errorf("executor.max_attempts must be a positive integer")
	}
	if c.Detector.PollInterval <= 0 || c.Detector.Timeout <= 0 {
		return fmt.Errorf("detector.poll_interval and detector.timeout must be positive durations")
	}
	if c.Login.PollInterval <= 0 || c.Login.Deadline <= 0 {
		return fmt.Errorf("login.poll_interval and login.deadline must be positive durations")
	}
	for _, tmpl := range c.Locators.EntryItem {
		if !strings.Contains(tmpl, "%d") {
			return fmt.Errorf("locators.entry_item template %q must contain a %%d index placeholder", tmpl)
		}
	}
	return nil
}
