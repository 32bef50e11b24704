// Package config provides configuration loading and validation for the
// roster reconciliation server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/memberhub/roster-sync/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by roster-sync.
const EnvPrefix = "ROSTER_SYNC"

const (
	// PaginationOffset walks the roster with an offset cursor bounded by the
	// declared total record count.
	PaginationOffset = "offset"
	// PaginationPages walks the roster page by page up to the declared page count.
	PaginationPages = "pages"
)

const (
	// AuthStrategyTenant uses the token stored on each tenant.
	AuthStrategyTenant = "tenant"
	// AuthStrategySystem logs in once per run and shares the token across tenants.
	AuthStrategySystem = "system"
)

const (
	// APIAuthModeAnonymous leaves the ops API open.
	APIAuthModeAnonymous = "anonymous"
	// APIAuthModeJWT requires an HMAC-signed bearer JWT.
	APIAuthModeJWT = "jwt"
)

const (
	// LockTypeNone relies on in-process guarding only.
	LockTypeNone = "none"
	// LockTypeFile guards runs with a file lock on the local host.
	LockTypeFile = "file"
	// LockTypeRedis guards runs across replicas with a redis key.
	LockTypeRedis = "redis"
)

const (
	// DefaultPageSize is the number of records requested per roster page.
	DefaultPageSize = 500
	// DefaultRequestTimeout bounds every remote call.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultCron fires the reconciliation daily at 01:15.
	DefaultCron = "15 1 * * *"
	// DefaultDataDir holds the status file and the file lock.
	DefaultDataDir = "./data"

	defaultMaxAttempts     = 3
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 10 * time.Second
	defaultTokenTTL        = time.Hour
	defaultLockTTL         = 6 * time.Hour
	defaultLockKey         = "roster-sync:run-lock"
	defaultStatusCode      = 1
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Remote    RemoteConfig      `yaml:"remote"`
	Auth      AuthConfig        `yaml:"auth"`
	Schedule  ScheduleConfig    `yaml:"schedule"`
	Reconcile ReconcileConfig   `yaml:"reconcile"`
	Database  *DatabaseConfig   `yaml:"database,omitempty"`
	Lock      *LockConfig       `yaml:"lock,omitempty"`
	Events    *EventsConfig     `yaml:"events,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
	APIAuth   *APIAuthConfig    `yaml:"apiAuth,omitempty"`

	// DataDir holds the last-run status file and the file lock when no
	// database or explicit lock path is configured.
	DataDir string `yaml:"dataDir,omitempty"`

	// TenantsFile lists tenants loaded into the store at startup when no
	// database is configured.
	TenantsFile string `yaml:"tenantsFile,omitempty"`
}

// RemoteConfig describes the remote roster API.
type RemoteConfig struct {
	// BaseURL is prepended to every path below.
	BaseURL string `yaml:"baseURL"`

	// Pagination selects the wire contract: "offset" (default) or "pages".
	Pagination string `yaml:"pagination,omitempty"`

	// ListPath is the roster listing endpoint. With offset pagination it is
	// POSTed a cursor body; with page pagination the page number is
	// appended as a path segment.
	ListPath string `yaml:"listPath"`

	// PaginationPath returns the page count. Only used with "pages".
	PaginationPath string `yaml:"paginationPath,omitempty"`

	// PageSize is the number of records per page. Defaults to 500.
	PageSize int `yaml:"pageSize,omitempty"`

	// StatusCode is the remote member situation filter sent with offset
	// requests. Defaults to 1 (active).
	StatusCode int `yaml:"statusCode,omitempty"`

	// RequestTimeout bounds each remote call (e.g. "30s").
	RequestTimeout string `yaml:"requestTimeout,omitempty"`

	Retry *RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig controls per-page retries.
type RetryConfig struct {
	MaxAttempts     int    `yaml:"maxAttempts,omitempty"`
	InitialInterval string `yaml:"initialInterval,omitempty"`
	MaxInterval     string `yaml:"maxInterval,omitempty"`
}

// AuthConfig selects how credentials for the remote API are obtained.
type AuthConfig struct {
	// Strategy is "tenant" (default) or "system".
	Strategy string `yaml:"strategy,omitempty"`

	// The fields below are only read by the system strategy.
	LoginURL         string `yaml:"loginURL,omitempty"`
	Username         string `yaml:"username,omitempty"`
	PasswordFile     string `yaml:"passwordFile,omitempty"`
	ServiceTokenFile string `yaml:"serviceTokenFile,omitempty"`

	// TokenTTL is assumed for login tokens that carry no expiry claim.
	TokenTTL string `yaml:"tokenTTL,omitempty"`
}

// ScheduleConfig controls when reconciliation runs fire.
type ScheduleConfig struct {
	// Cron is a standard five-field cron expression.
	Cron string `yaml:"cron,omitempty"`

	// Timezone is an IANA location name. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// RunOnStartup triggers a run as soon as the scheduler starts.
	RunOnStartup bool `yaml:"runOnStartup,omitempty"`
}

// ReconcileConfig tunes the orchestrator.
type ReconcileConfig struct {
	// Concurrency is the number of tenants reconciled in parallel.
	// Defaults to 1.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// LockConfig selects the cross-process run lock.
type LockConfig struct {
	Type string `yaml:"type"`

	// Path of the lock file for the "file" type.
	Path string `yaml:"path,omitempty"`

	// Redis settings for the "redis" type.
	Address string `yaml:"address,omitempty"`
	DB      int    `yaml:"db,omitempty"`
	Key     string `yaml:"key,omitempty"`
	TTL     string `yaml:"ttl,omitempty"`
}

// EventsConfig enables publishing run summaries to kafka.
type EventsConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"clientID,omitempty"`
}

// APIAuthConfig protects the ops API. Without it every endpoint is open.
type APIAuthConfig struct {
	// Mode is "anonymous" (default) or "jwt".
	Mode string `yaml:"mode,omitempty"`

	// Issuer and Audience are matched against the token claims when set.
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`

	// SecretFile holds the HMAC key tokens are signed with.
	SecretFile string `yaml:"secretFile,omitempty"`

	// Realm is reported in WWW-Authenticate challenges.
	Realm string `yaml:"realm,omitempty"`

	// PublicPaths bypass authentication. Defaults to the health, readiness,
	// version and metrics endpoints.
	PublicPaths []string `yaml:"publicPaths,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.Remote.validate(); err != nil {
		return err
	}
	if err := c.Auth.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	if c.Reconcile.Concurrency < 0 {
		return fmt.Errorf("reconcile: concurrency must not be negative")
	}
	if err := c.Lock.validate(); err != nil {
		return err
	}
	if err := c.Events.validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return c.APIAuth.validate()
}

func (a *APIAuthConfig) validate() error {
	if a == nil {
		return nil
	}
	switch a.GetMode() {
	case APIAuthModeAnonymous, APIAuthModeJWT:
		return nil
	default:
		return fmt.Errorf("apiAuth: mode must be %q or %q, got %q", APIAuthModeAnonymous, APIAuthModeJWT, a.Mode)
	}
}

func (r *RemoteConfig) validate() error {
	if r.BaseURL == "" {
		return fmt.Errorf("remote: baseURL is required")
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("remote: baseURL must be an absolute URL, got %q", r.BaseURL)
	}
	if r.ListPath == "" {
		return fmt.Errorf("remote: listPath is required")
	}

	switch r.GetPagination() {
	case PaginationOffset:
	case PaginationPages:
		if r.PaginationPath == "" {
			return fmt.Errorf("remote: paginationPath is required when pagination is %q", PaginationPages)
		}
	default:
		return fmt.Errorf("remote: pagination must be %q or %q, got %q", PaginationOffset, PaginationPages, r.Pagination)
	}

	if r.PageSize < 0 {
		return fmt.Errorf("remote: pageSize must not be negative")
	}
	if err := validateDuration(r.RequestTimeout, "remote: requestTimeout"); err != nil {
		return err
	}
	if r.Retry != nil {
		if r.Retry.MaxAttempts < 0 {
			return fmt.Errorf("remote: retry.maxAttempts must not be negative")
		}
		if err := validateDuration(r.Retry.InitialInterval, "remote: retry.initialInterval"); err != nil {
			return err
		}
		if err := validateDuration(r.Retry.MaxInterval, "remote: retry.maxInterval"); err != nil {
			return err
		}
	}
	return nil
}

func (a *AuthConfig) validate() error {
	switch a.GetStrategy() {
	case AuthStrategyTenant:
		return nil
	case AuthStrategySystem:
		if a.LoginURL == "" {
			return fmt.Errorf("auth: loginURL is required for the %q strategy", AuthStrategySystem)
		}
		if a.Username == "" {
			return fmt.Errorf("auth: username is required for the %q strategy", AuthStrategySystem)
		}
		return validateDuration(a.TokenTTL, "auth: tokenTTL")
	default:
		return fmt.Errorf("auth: strategy must be %q or %q, got %q", AuthStrategyTenant, AuthStrategySystem, a.Strategy)
	}
}

func (s *ScheduleConfig) validate() error {
	if _, err := cron.ParseStandard(s.GetCron()); err != nil {
		return fmt.Errorf("schedule: invalid cron expression %q: %w", s.GetCron(), err)
	}
	if _, err := s.GetLocation(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	return nil
}

func (l *LockConfig) validate() error {
	if l == nil {
		return nil
	}
	switch l.Type {
	case LockTypeNone, LockTypeFile:
	case LockTypeRedis:
		if l.Address == "" {
			return fmt.Errorf("lock: address is required for the %q lock", LockTypeRedis)
		}
	default:
		return fmt.Errorf("lock: type must be one of %q, %q or %q, got %q", LockTypeNone, LockTypeFile, LockTypeRedis, l.Type)
	}
	return validateDuration(l.TTL, "lock: ttl")
}

func (e *EventsConfig) validate() error {
	if e == nil {
		return nil
	}
	if len(e.Brokers) == 0 {
		return fmt.Errorf("events: at least one broker is required")
	}
	if e.Topic == "" {
		return fmt.Errorf("events: topic is required")
	}
	return nil
}

func validateDuration(value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30s', '1h'): %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetDataDir returns the data directory, defaulting to ./data.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return DefaultDataDir
	}
	return c.DataDir
}

// GetPagination returns the pagination mode, defaulting to offset.
func (r *RemoteConfig) GetPagination() string {
	if r.Pagination == "" {
		return PaginationOffset
	}
	return strings.ToLower(r.Pagination)
}

// GetPageSize returns the page size, defaulting to 500.
func (r *RemoteConfig) GetPageSize() int {
	if r.PageSize <= 0 {
		return DefaultPageSize
	}
	return r.PageSize
}

// GetStatusCode returns the remote situation filter, defaulting to active.
func (r *RemoteConfig) GetStatusCode() int {
	if r.StatusCode <= 0 {
		return defaultStatusCode
	}
	return r.StatusCode
}

// GetRequestTimeout returns the per-request timeout, defaulting to 30s.
func (r *RemoteConfig) GetRequestTimeout() time.Duration {
	return durationOr(r.RequestTimeout, DefaultRequestTimeout)
}

// GetMaxAttempts returns how many times a page is requested before the
// fetch fails.
func (r *RemoteConfig) GetMaxAttempts() int {
	if r.Retry == nil || r.Retry.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return r.Retry.MaxAttempts
}

// GetRetryIntervals returns the initial and maximum backoff intervals.
func (r *RemoteConfig) GetRetryIntervals() (initial, maxInterval time.Duration) {
	if r.Retry == nil {
		return defaultInitialInterval, defaultMaxInterval
	}
	return durationOr(r.Retry.InitialInterval, defaultInitialInterval),
		durationOr(r.Retry.MaxInterval, defaultMaxInterval)
}

// ListURL returns the absolute roster listing URL.
func (r *RemoteConfig) ListURL() string {
	return joinURL(r.BaseURL, r.ListPath)
}

// PaginationURL returns the absolute page-count URL.
func (r *RemoteConfig) PaginationURL() string {
	return joinURL(r.BaseURL, r.PaginationPath)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// GetStrategy returns the credential strategy, defaulting to tenant tokens.
func (a *AuthConfig) GetStrategy() string {
	if a.Strategy == "" {
		return AuthStrategyTenant
	}
	return strings.ToLower(a.Strategy)
}

// GetPassword returns the system login password from PasswordFile or the
// ROSTER_SYNC_REMOTE_PASSWORD environment variable.
func (a *AuthConfig) GetPassword() (string, error) {
	return readSecret(a.PasswordFile, EnvPrefix+"_REMOTE_PASSWORD", "remote password")
}

// GetServiceToken returns the pre-shared service token from
// ServiceTokenFile or the ROSTER_SYNC_REMOTE_SERVICE_TOKEN environment variable.
func (a *AuthConfig) GetServiceToken() (string, error) {
	return readSecret(a.ServiceTokenFile, EnvPrefix+"_REMOTE_SERVICE_TOKEN", "remote service token")
}

// GetTokenTTL returns the lifetime assumed for login tokens without an
// expiry claim.
func (a *AuthConfig) GetTokenTTL() time.Duration {
	return durationOr(a.TokenTTL, defaultTokenTTL)
}

// GetCron returns the cron expression, defaulting to daily at 01:15.
func (s *ScheduleConfig) GetCron() string {
	if s.Cron == "" {
		return DefaultCron
	}
	return s.Cron
}

// GetLocation resolves the configured timezone.
func (s *ScheduleConfig) GetLocation() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// GetConcurrency returns the tenant worker count, defaulting to 1.
func (r *ReconcileConfig) GetConcurrency() int {
	if r.Concurrency <= 0 {
		return 1
	}
	return r.Concurrency
}

// GetKey returns the redis lock key.
func (l *LockConfig) GetKey() string {
	if l.Key == "" {
		return defaultLockKey
	}
	return l.Key
}

// GetTTL returns how long a redis lock is held before it expires on its own.
func (l *LockConfig) GetTTL() time.Duration {
	return durationOr(l.TTL, defaultLockTTL)
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from ROSTER_SYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	return readSecret(d.PasswordFile, EnvPrefix+"_DATABASE_PASSWORD", "database password")
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// GetConnMaxLifetime returns the pool connection lifetime, zero when unset.
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return durationOr(d.ConnMaxLifetime, 0)
}

// GetMode returns the API auth mode, defaulting to anonymous.
func (a *APIAuthConfig) GetMode() string {
	if a == nil || a.Mode == "" {
		return APIAuthModeAnonymous
	}
	return strings.ToLower(a.Mode)
}

// GetSecret returns the JWT signing key from SecretFile or the
// ROSTER_SYNC_API_JWT_SECRET environment variable.
func (a *APIAuthConfig) GetSecret() (string, error) {
	return readSecret(a.SecretFile, EnvPrefix+"_API_JWT_SECRET", "API JWT secret")
}

func readSecret(file, envVar, what string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read %s from file %s: %w", what, file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	return "", fmt.Errorf("no %s configured: set the file option or the %s environment variable", what, envVar)
}
