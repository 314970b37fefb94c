// Package config provides the two configuration surfaces of the deploy bot:
// the project options document (projects, environments, services, chat
// groups) and the flat app-config key/value store (bot token, downstream
// credentials, timeouts). Both live in the store and are seeded by the
// initdb command; this package adds typed, defaulted access on top.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// App-config keys. The store holds every value as a string; typed getters
// parse and default them.
const (
	KeyBotToken         = "BOT_TOKEN"
	KeyApproverUsername = "APPROVER_USERNAME"
	KeyApproverUserID   = "APPROVER_USER_ID"

	KeyAPIBaseURL  = "API_BASE_URL"
	KeyAPIEndpoint = "API_ENDPOINT"
	KeyAPIToken    = "API_TOKEN"
	KeyAPITimeout  = "API_TIMEOUT"

	KeyConnectionPoolSize = "CONNECTION_POOL_SIZE"
	KeyHTTPReadTimeout    = "HTTP_READ_TIMEOUT"
	KeyHTTPWriteTimeout   = "HTTP_WRITE_TIMEOUT"
	KeyHTTPConnectTimeout = "HTTP_CONNECT_TIMEOUT"

	KeySSOEnabled       = "SSO_ENABLED"
	KeySSOURL           = "SSO_URL"
	KeySSOAuthToken     = "SSO_AUTH_TOKEN"
	KeySSOAuthorization = "SSO_AUTHORIZATION"

	KeyJenkinsEnabled  = "JENKINS_ENABLED"
	KeyJenkinsURL      = "JENKINS_URL"
	KeyJenkinsUsername = "JENKINS_USERNAME"
	KeyJenkinsAPIToken = "JENKINS_API_TOKEN"

	KeyProxyEnabled  = "PROXY_ENABLED"
	KeyProxyHost     = "PROXY_HOST"
	KeyProxyPort     = "PROXY_PORT"
	KeyProxyUsername = "PROXY_USERNAME"
	KeyProxyPassword = "PROXY_PASSWORD"
	KeyProxyType     = "PROXY_TYPE"

	KeyLogLevel       = "LOG_LEVEL"
	KeyLogFile        = "LOG_FILE"
	KeyLogMaxBytes    = "LOG_MAX_BYTES"
	KeyLogBackupCount = "LOG_BACKUP_COUNT"
)

// Defaults applied when a key is missing or empty.
const (
	DefaultAPIEndpoint       = "/workflows/sync"
	DefaultAPITimeout        = 30 * time.Second
	DefaultPoolSize          = 50
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultJenkinsConcurrent = 1
)

// ConfigStore is the slice of the store this package reads.
type ConfigStore interface {
	GetConfig(ctx context.Context, key, fallback string) (string, error)
}

// App reads typed app-config values through the store on every call, so
// token rotations and credential edits take effect without a restart.
type App struct {
	store ConfigStore
}

// NewApp returns an app-config reader bound to a store.
func NewApp(store ConfigStore) *App {
	return &App{store: store}
}

func (a *App) get(ctx context.Context, key string) string {
	value, err := a.store.GetConfig(ctx, key, "")
	if err != nil {
		return ""
	}
	return value
}

func (a *App) getBool(ctx context.Context, key string) bool {
	return strings.EqualFold(a.get(ctx, key), "true")
}

func (a *App) getInt(ctx context.Context, key string, fallback int) int {
	value := a.get(ctx, key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// getSeconds parses a key holding seconds, allowing fractional values.
func (a *App) getSeconds(ctx context.Context, key string, fallback time.Duration) time.Duration {
	value := a.get(ctx, key)
	if value == "" {
		return fallback
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}

// BotToken returns the chat bot token, which is required to boot.
func (a *App) BotToken(ctx context.Context) string {
	return a.get(ctx, KeyBotToken)
}

// RequireBotToken is the boot-time check for the one config value nothing
// works without.
func (a *App) RequireBotToken(ctx context.Context) error {
	if a.BotToken(ctx) == "" {
		return fmt.Errorf("缺少必要的配置项: BOT_TOKEN，请先运行 deploybot initdb 初始化数据库")
	}
	return nil
}

// ApproverUsername returns the configured approver handle, possibly with a
// leading @.
func (a *App) ApproverUsername(ctx context.Context) string {
	return a.get(ctx, KeyApproverUsername)
}

// ApproverUserID returns the numeric approver id, 0 when unset.
func (a *App) ApproverUserID(ctx context.Context) int64 {
	value := a.get(ctx, KeyApproverUserID)
	if value == "" {
		return 0
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// APISettings is the external sync endpoint configuration.
type APISettings struct {
	BaseURL  string
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// Enabled reports whether sync should run at all.
func (s APISettings) Enabled() bool { return s.BaseURL != "" }

// API returns the external sync settings with defaults applied.
func (a *App) API(ctx context.Context) APISettings {
	endpoint := a.get(ctx, KeyAPIEndpoint)
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	return APISettings{
		BaseURL:  a.get(ctx, KeyAPIBaseURL),
		Endpoint: endpoint,
		Token:    a.get(ctx, KeyAPIToken),
		Timeout:  a.getSeconds(ctx, KeyAPITimeout, DefaultAPITimeout),
	}
}

// PoolSettings sizes the chat transport's HTTP client.
type PoolSettings struct {
	Size           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ConnectTimeout time.Duration
}

// Pool returns the connection-pool settings with defaults applied.
func (a *App) Pool(ctx context.Context) PoolSettings {
	return PoolSettings{
		Size:           a.getInt(ctx, KeyConnectionPoolSize, DefaultPoolSize),
		ReadTimeout:    a.getSeconds(ctx, KeyHTTPReadTimeout, DefaultReadTimeout),
		WriteTimeout:   a.getSeconds(ctx, KeyHTTPWriteTimeout, DefaultWriteTimeout),
		ConnectTimeout: a.getSeconds(ctx, KeyHTTPConnectTimeout, DefaultConnectTimeout),
	}
}

// SSOSettings is the release-ticket system configuration.
type SSOSettings struct {
	Enabled       bool
	URL           string
	AuthToken     string
	Authorization string
}

// Valid reports whether SSO submission can proceed: it must be enabled and
// carry the endpoint plus both credential headers.
func (s SSOSettings) Valid() bool {
	return s.Enabled && s.URL != "" && s.AuthToken != "" && s.Authorization != ""
}

// SSO returns the release-ticket system settings.
func (a *App) SSO(ctx context.Context) SSOSettings {
	return SSOSettings{
		Enabled:       a.getBool(ctx, KeySSOEnabled),
		URL:           a.get(ctx, KeySSOURL),
		AuthToken:     a.get(ctx, KeySSOAuthToken),
		Authorization: a.get(ctx, KeySSOAuthorization),
	}
}

// Jenkins returns the global Jenkins settings. Per-project settings from the
// options document override these, see JenkinsFor.
func (a *App) Jenkins(ctx context.Context) JenkinsSettings {
	return JenkinsSettings{
		Enabled:       a.getBool(ctx, KeyJenkinsEnabled),
		URL:           a.get(ctx, KeyJenkinsURL),
		Username:      a.get(ctx, KeyJenkinsUsername),
		APIToken:      a.get(ctx, KeyJenkinsAPIToken),
		MaxConcurrent: DefaultJenkinsConcurrent,
	}
}

// JenkinsFor merges a project's Jenkins settings over the global ones. A
// project that defines a jenkins block controls its own enabled flag;
// unset connection fields inherit the global values.
func (a *App) JenkinsFor(ctx context.Context, project *Project) JenkinsSettings {
	settings := a.Jenkins(ctx)
	if project == nil || project.Jenkins == nil {
		return settings
	}
	override := project.Jenkins
	settings.Enabled = override.Enabled
	if override.URL != "" {
		settings.URL = override.URL
	}
	if override.Username != "" {
		settings.Username = override.Username
	}
	if override.APIToken != "" {
		settings.APIToken = override.APIToken
	}
	if override.MaxConcurrent > 0 {
		settings.MaxConcurrent = override.MaxConcurrent
	}
	return settings
}

// GlobalProxy reads the PROXY_* keys, returning nil when disabled.
func (a *App) GlobalProxy(ctx context.Context) *ProxySettings {
	if !a.getBool(ctx, KeyProxyEnabled) {
		return nil
	}
	proxyType := a.get(ctx, KeyProxyType)
	if proxyType == "" {
		proxyType = "socks5"
	}
	return &ProxySettings{
		Enabled:  true,
		Type:     proxyType,
		Host:     a.get(ctx, KeyProxyHost),
		Port:     a.getInt(ctx, KeyProxyPort, 0),
		Username: a.get(ctx, KeyProxyUsername),
		Password: a.get(ctx, KeyProxyPassword),
	}
}

// LogLevel returns the configured log level name, empty when unset.
func (a *App) LogLevel(ctx context.Context) string {
	return a.get(ctx, KeyLogLevel)
}

// LogFile returns the log file path, empty for stderr-only logging.
func (a *App) LogFile(ctx context.Context) string {
	return a.get(ctx, KeyLogFile)
}

// LogRotation returns the rotating-file limits: max size per file in
// megabytes and the number of rotated files to keep.
func (a *App) LogRotation(ctx context.Context) (maxSizeMB, backups int) {
	maxBytes := a.getInt(ctx, KeyLogMaxBytes, 10*1024*1024)
	maxSizeMB = maxBytes / (1024 * 1024)
	if maxSizeMB < 1 {
		maxSizeMB = 1
	}
	backups = a.getInt(ctx, KeyLogBackupCount, 5)
	if backups < 0 {
		backups = 0
	}
	return maxSizeMB, backups
}
