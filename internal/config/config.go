package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aixcyberchallenge/submission-relay/internal/logger"
	"github.com/aixcyberchallenge/submission-relay/internal/validator"
)

type TeamPermissions struct {
	Submit bool `mapstructure:"submit" json:"submit"`
	Admin  bool `mapstructure:"admin"  json:"admin"`
}

type Team struct {
	Name string `mapstructure:"name"     json:"name"     validate:"required"`
	// argon2id hash of the team PIN, see `relayctl hash-pin`
	PINHash     string          `mapstructure:"pin_hash"    json:"-"           validate:"required"`
	Permissions TeamPermissions `mapstructure:"permissions" json:"permissions"`
}

type GithubConfig struct {
	Owner         string `mapstructure:"owner"          validate:"required"`
	Repo          string `mapstructure:"repo"           validate:"required"`
	Branch        string `mapstructure:"branch"`
	PathPrefix    string `mapstructure:"path_prefix"    validate:"required"`
	CommitMessage string `mapstructure:"commit_message" validate:"required"`
	// Either Token or the App* fields must be set
	Token          string `mapstructure:"token"           validate:"required_without=AppID"`
	AppID          int64  `mapstructure:"app_id"          validate:"required_without=Token"`
	InstallationID int64  `mapstructure:"installation_id" validate:"required_with=AppID"`
	AppKeyPath     string `mapstructure:"app_key_path"    validate:"required_with=AppID"`
	// Override for GitHub Enterprise
	BaseURL          string `mapstructure:"base_url"`
	TransportRetries int    `mapstructure:"transport_retries"`
}

type RelayConfig struct {
	FileDelay     time.Duration `mapstructure:"file_delay"`
	GraceDelay    time.Duration `mapstructure:"grace_delay"`
	UpsertRetries uint64        `mapstructure:"upsert_retries"`
	StreamTTL     time.Duration `mapstructure:"stream_ttl"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
}

type LedgerBackend string

const (
	LedgerBackendFile  LedgerBackend = "file"
	LedgerBackendRedis LedgerBackend = "redis"
)

type LedgerConfig struct {
	Backend  LedgerBackend `mapstructure:"backend"   validate:"required,oneof=file redis"`
	Path     string        `mapstructure:"path"      validate:"required_if=Backend file"`
	RedisKey string        `mapstructure:"redis_key" validate:"required_if=Backend redis"`
}

type RedisConfig struct {
	Host string `mapstructure:"host"`
}

type RateLimitConfig struct {
	SubmitPerMinute int64 `mapstructure:"submit_per_minute"`
	FailOpen        bool  `mapstructure:"fail_open"`
}

type ArchiveBackend string

const (
	ArchiveBackendNone  ArchiveBackend = "none"
	ArchiveBackendS3    ArchiveBackend = "s3"
	ArchiveBackendAzure ArchiveBackend = "azure"
)

type S3ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	SSLEnabled      bool   `mapstructure:"ssl_enabled"`
}

type AzureArchiveConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	ServiceURL  string `mapstructure:"service_url"`
	Container   string `mapstructure:"container"`
}

type ArchiveConfig struct {
	Backend ArchiveBackend     `mapstructure:"backend" validate:"required,oneof=none s3 azure"`
	S3      S3ArchiveConfig    `mapstructure:"s3"`
	Azure   AzureArchiveConfig `mapstructure:"azure"`
}

type SlogConfig struct {
	Level int `mapstructure:"level"`
}

type LoggingConfig struct {
	App     SlogConfig `mapstructure:"app"`
	UseOTLP bool       `mapstructure:"use_otlp"`
}

// See submissionrelay.yaml for an example config
type Config struct {
	Logging              *LoggingConfig   `mapstructure:"logging"                validate:"required"`
	Github               *GithubConfig    `mapstructure:"github"                 validate:"required"`
	Relay                *RelayConfig     `mapstructure:"relay"                  validate:"required"`
	Ledger               *LedgerConfig    `mapstructure:"ledger"                 validate:"required"`
	Redis                *RedisConfig     `mapstructure:"redis"`
	RateLimit            *RateLimitConfig `mapstructure:"ratelimit"`
	Archive              *ArchiveConfig   `mapstructure:"archive"                validate:"required"`
	TempDir              string           `mapstructure:"temp_dir"               validate:"required"`
	MaxUploadSize        string           `mapstructure:"max_upload_size"        validate:"required"`
	ListenAddress        string           `mapstructure:"listen_address"         validate:"required"`
	Teams                []Team           `mapstructure:"teams"                  validate:"required,dive"`
	GracefulShutdownSecs int64            `mapstructure:"graceful_shutdown_secs"`
}

const (
	AppLogLevel             string = "logging.app.level"
	ArchiveBackendKey       string = "archive.backend"
	AzureAccountKey         string = "archive.azure.account_key"
	EnvPrefix               string = "submissionrelay"
	GithubAppKeyPath        string = "github.app_key_path"
	GithubBranch            string = "github.branch"
	GithubCommitMessage     string = "github.commit_message"
	GithubPathPrefix        string = "github.path_prefix"
	GithubToken             string = "github.token" // #nosec
	GithubTransportRetries  string = "github.transport_retries"
	GracefulShutdownSecs    string = "graceful_shutdown_secs"
	LedgerBackendKey        string = "ledger.backend"
	LedgerPath              string = "ledger.path"
	LedgerRedisKey          string = "ledger.redis_key"
	ListenAddress           string = "listen_address"
	MaxUploadSize           string = "max_upload_size"
	RateLimitFailOpen       string = "ratelimit.fail_open"
	RedisHost               string = "redis.host"
	RelayFileDelay          string = "relay.file_delay"
	RelayGraceDelay         string = "relay.grace_delay"
	RelayReapInterval       string = "relay.reap_interval"
	RelayStreamTTL          string = "relay.stream_ttl"
	RelayUpsertRetries      string = "relay.upsert_retries"
	S3AccessKeyID           string = "archive.s3.access_key_id"
	S3SSLEnabled            string = "archive.s3.ssl_enabled"
	S3SecretAccessKey       string = "archive.s3.secret_access_key" // #nosec
	SubmitPerMinute         string = "ratelimit.submit_per_minute"
	TempDir                 string = "temp_dir"
	UseOTLP                 string = "logging.use_otlp"
	defaultCommitMessageFmt string = "Upload %s"
)

var ErrNoTeams = errors.New("no teams configured")

var configReady = false
var config Config

// Loads the config once from file and environment. Subsequent calls return the cached value.
func GetConfig() (*Config, error) {
	if configReady {
		logger.Logger.Debug("returning already-loaded config")
		return &config, nil
	}
	logger.Logger.Info("loading config")

	v := viper.New()

	v.SetConfigName("submissionrelay")

	v.AddConfigPath("/etc/submissionrelay/")
	v.AddConfigPath(".")

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the nested struct
	for _, key := range []string{GithubToken, GithubAppKeyPath, S3AccessKeyID, S3SecretAccessKey, AzureAccountKey} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	setDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	loaded, err := unmarshal(v)
	if err != nil {
		configReady = false
		return nil, err
	}

	config = *loaded
	configReady = true
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(ListenAddress, "[::]:5000")
	v.SetDefault(GracefulShutdownSecs, 30)
	v.SetDefault(TempDir, "/tmp")
	v.SetDefault(MaxUploadSize, "64M")

	v.SetDefault(AppLogLevel, int(slog.LevelDebug))
	v.SetDefault(UseOTLP, false)

	v.SetDefault(GithubBranch, "")
	v.SetDefault(GithubPathPrefix, "submissions")
	v.SetDefault(GithubCommitMessage, defaultCommitMessageFmt)
	v.SetDefault(GithubTransportRetries, 0)

	v.SetDefault(RelayFileDelay, 50*time.Millisecond)
	v.SetDefault(RelayGraceDelay, time.Second)
	v.SetDefault(RelayUpsertRetries, 0)
	v.SetDefault(RelayStreamTTL, time.Hour)
	v.SetDefault(RelayReapInterval, 5*time.Minute)

	v.SetDefault(LedgerBackendKey, string(LedgerBackendFile))
	v.SetDefault(LedgerPath, "uploads_state.json")
	v.SetDefault(LedgerRedisKey, "submissionrelay-submitted")

	v.SetDefault(RedisHost, "localhost")
	v.SetDefault(SubmitPerMinute, 0)
	v.SetDefault(RateLimitFailOpen, true)

	v.SetDefault(ArchiveBackendKey, string(ArchiveBackendNone))
	v.SetDefault(S3SSLEnabled, true)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}

	valid := validator.Create()
	if err := valid.Validate(&c); err != nil {
		return nil, err
	}

	if len(c.Teams) == 0 {
		return nil, ErrNoTeams
	}

	return &c, nil
}

// Team by name, nil if not configured
func (c *Config) Team(name string) *Team {
	for i := range c.Teams {
		if c.Teams[i].Name == name {
			return &c.Teams[i]
		}
	}

	return nil
}
