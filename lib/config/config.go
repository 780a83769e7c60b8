// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "MMIA_CONFIG"

// Config is the configuration of one MMIA service process. Each
// service reads the sections it needs and ignores the rest.
type Config struct {
	Environment Environment `yaml:"environment"`

	Service       ServiceConfig       `yaml:"service"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	API           APIConfig           `yaml:"api"`
	CHES          CHESConfig          `yaml:"ches"`
	Store         StoreConfig         `yaml:"store"`
	Credentials   CredentialsConfig   `yaml:"credentials"`
	Image         ImageConfig         `yaml:"image"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Notification  NotificationConfig  `yaml:"notification"`
	Reporting     ReportingConfig     `yaml:"reporting"`

	// Per-environment sections use the same shape as the top level
	// and are decoded over it when the environment matches.
	Development yaml.Node `yaml:"development,omitempty"`
	Staging     yaml.Node `yaml:"staging,omitempty"`
	Production  yaml.Node `yaml:"production,omitempty"`
}

// ServiceConfig configures the supervisor and the action pipeline.
type ServiceConfig struct {
	// Name identifies the service in logs and the control socket path.
	Name string `yaml:"name"`

	// Topics is a comma-separated list of topics to consume. An empty
	// list stops the consumer.
	Topics string `yaml:"topics"`

	// DefaultDelay is the supervisor tick interval.
	DefaultDelay Duration `yaml:"default_delay"`

	// MaxFailLimit is the failure count above which the supervisor
	// puts the service to sleep.
	MaxFailLimit int `yaml:"max_fail_limit"`

	// RetryLimit is how many times the consume task retries a failing
	// message before giving up on the current subscription.
	RetryLimit int `yaml:"retry_limit"`

	// RetryDelay is the pause between attempts at a failing message.
	RetryDelay Duration `yaml:"retry_delay"`

	// StaleAfter is the age after which an InProgress content reference
	// may be reclaimed by another worker.
	StaleAfter Duration `yaml:"stale_after"`

	// AcceptOnlyWorkOrders skips messages that have no live work order.
	AcceptOnlyWorkOrders bool `yaml:"accept_only_work_orders"`

	// SocketPath is the control socket. Defaults to
	// /run/mmia/<name>.sock.
	SocketPath string `yaml:"socket_path"`
}

// TopicList splits Topics on commas, dropping blanks.
func (s ServiceConfig) TopicList() []string {
	var topics []string
	for _, topic := range strings.Split(s.Topics, ",") {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}

// KafkaConfig configures the broker connection.
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	GroupID        string   `yaml:"group_id"`
	ClientID       string   `yaml:"client_id"`
	SessionTimeout Duration `yaml:"session_timeout"`
	// OffsetReset is where a new consumer group starts: "earliest" or
	// "latest".
	OffsetReset string `yaml:"offset_reset"`
}

// APIConfig configures the data API client.
type APIConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// CHESConfig configures outbound email delivery.
type CHESConfig struct {
	URL          string   `yaml:"url"`
	AuthURL      string   `yaml:"auth_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	From         string   `yaml:"from"`
	Timeout      Duration `yaml:"timeout"`

	// EmailEnabled false turns delivery into a logged no-op.
	EmailEnabled bool `yaml:"email_enabled"`

	// OverrideTo replaces every recipient, for non-production use.
	OverrideTo string `yaml:"override_to"`
}

// StoreConfig configures the optional local SQLite store. When Path is
// empty, content references and work orders live in the data API.
type StoreConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
	// Compression for archived delivery responses: none, lz4 or zstd.
	Compression string `yaml:"compression"`
}

// CredentialsConfig points at an age-sealed credential bundle. When
// set, the decrypted values fill the secret fields they name.
type CredentialsConfig struct {
	IdentityFile string `yaml:"identity_file"`
	Bundle       string `yaml:"bundle"`
}

// ImageConfig configures the image ingestion service.
type ImageConfig struct {
	VolumePath   string              `yaml:"volume_path"`
	OutputTopic  string              `yaml:"output_topic"`
	RequestTopic string              `yaml:"request_topic"`
	ScanSchedule string              `yaml:"scan_schedule"`
	TimeZone     string              `yaml:"time_zone"`
	Sources      []ImageSourceConfig `yaml:"sources"`
}

// ImageSourceConfig is one remote image drop.
type ImageSourceConfig struct {
	Code           string `yaml:"code"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	KeyFile        string `yaml:"key_file"`
	KnownHostsFile string `yaml:"known_hosts_file"`
	// Path is the remote directory. "<date>" is replaced with the scan
	// date in the Go time layout PathLayout; FilePattern takes the same
	// placeholder.
	Path        string `yaml:"path"`
	PathLayout  string `yaml:"path_layout"`
	FilePattern string `yaml:"file_pattern"`
	ProductID   int    `yaml:"product_id"`
}

// TranscriptionConfig configures the transcription service.
type TranscriptionConfig struct {
	VolumePath string   `yaml:"volume_path"`
	SpeechURL  string   `yaml:"speech_url"`
	SpeechKey  string   `yaml:"speech_key"`
	Region     string   `yaml:"region"`
	Language   string   `yaml:"language"`
	FFmpegPath string   `yaml:"ffmpeg_path"`
	Timeout    Duration `yaml:"timeout"`
}

// NotificationConfig configures the notification service.
type NotificationConfig struct {
	MmiaURL              string `yaml:"mmia_url"`
	ViewContentURL       string `yaml:"view_content_url"`
	RequestTranscriptURL string `yaml:"request_transcript_url"`
	AddToReportURL       string `yaml:"add_to_report_url"`
	// AlertActionID identifies the content action that flags an alert.
	AlertActionID int    `yaml:"alert_action_id"`
	TemplatesFile string `yaml:"templates_file"`
}

// ReportingConfig configures the reporting service.
type ReportingConfig struct {
	ViewContentURL string `yaml:"view_content_url"`
	TemplatesFile  string `yaml:"templates_file"`
}

// Duration is a time.Duration read from a YAML string such as "30s".
type Duration time.Duration

// UnmarshalYAML parses the scalar with time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string like \"30s\"", value.Line)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the values a config file is decoded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Service: ServiceConfig{
			DefaultDelay: Duration(5 * time.Second),
			MaxFailLimit: 5,
			RetryLimit:   3,
			RetryDelay:   Duration(5 * time.Second),
			StaleAfter:   Duration(5 * time.Minute),
		},
		Kafka: KafkaConfig{
			SessionTimeout: Duration(45 * time.Second),
			OffsetReset:    "earliest",
		},
		API:  APIConfig{Timeout: Duration(30 * time.Second)},
		CHES: CHESConfig{Timeout: Duration(30 * time.Second), EmailEnabled: true},
		Store: StoreConfig{
			PoolSize:    4,
			Compression: "zstd",
		},
		Image: ImageConfig{
			VolumePath:   "/data",
			ScanSchedule: "*/5 * * * *",
			TimeZone:     "America/Vancouver",
		},
		Transcription: TranscriptionConfig{
			VolumePath: "/data",
			Language:   "en-CA",
			FFmpegPath: "ffmpeg",
			Timeout:    Duration(10 * time.Minute),
		},
	}
}

// Load reads the file named by MMIA_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of the service config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path over Default, applies the
// section for the configured environment and expands variables.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	if cfg.Service.SocketPath == "" && cfg.Service.Name != "" {
		cfg.Service.SocketPath = "/run/mmia/" + cfg.Service.Name + ".sock"
	}
	return cfg, nil
}

func (c *Config) applyEnvironment() error {
	var section *yaml.Node
	switch c.Environment {
	case Development:
		section = &c.Development
	case Staging:
		section = &c.Staging
	case Production:
		section = &c.Production
	default:
		return nil
	}
	if section.Kind == 0 {
		return nil
	}
	override := *section
	if err := override.Decode(c); err != nil {
		return fmt.Errorf("applying %s section: %w", c.Environment, err)
	}
	return nil
}

func (c *Config) expandVariables() {
	for _, field := range []*string{
		&c.Service.SocketPath,
		&c.API.URL, &c.API.Token,
		&c.CHES.URL, &c.CHES.AuthURL, &c.CHES.ClientID, &c.CHES.ClientSecret,
		&c.Store.Path,
		&c.Credentials.IdentityFile, &c.Credentials.Bundle,
		&c.Image.VolumePath,
		&c.Transcription.VolumePath, &c.Transcription.SpeechURL, &c.Transcription.SpeechKey,
		&c.Notification.TemplatesFile, &c.Reporting.TemplatesFile,
	} {
		*field = expandVars(*field)
	}
	for i := range c.Image.Sources {
		source := &c.Image.Sources[i]
		source.Password = expandVars(source.Password)
		source.KeyFile = expandVars(source.KeyFile)
		source.KnownHostsFile = expandVars(source.KnownHostsFile)
	}
	for i, broker := range c.Kafka.Brokers {
		c.Kafka.Brokers[i] = expandVars(broker)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default} with environment
// values.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// ApplyCredentials copies decrypted bundle values into the secret
// fields they name. Unknown keys are an error so a typo in a bundle
// does not silently leave a secret unset.
func (c *Config) ApplyCredentials(values map[string]string) error {
	targets := map[string]*string{
		"api_token":          &c.API.Token,
		"ches_client_id":     &c.CHES.ClientID,
		"ches_client_secret": &c.CHES.ClientSecret,
		"speech_key":         &c.Transcription.SpeechKey,
	}
	for i := range c.Image.Sources {
		targets["image_password_"+c.Image.Sources[i].Code] = &c.Image.Sources[i].Password
	}

	var errs []error
	for key, value := range values {
		target, ok := targets[key]
		if !ok {
			errs = append(errs, fmt.Errorf("credential bundle: unknown key %q", key))
			continue
		}
		*target = value
	}
	return errors.Join(errs...)
}

// Validate checks the sections every service needs.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Service.Name == "" {
		errs = append(errs, errors.New("service.name is required"))
	}
	if c.Service.DefaultDelay <= 0 {
		errs = append(errs, errors.New("service.default_delay must be positive"))
	}
	if c.Service.MaxFailLimit < 0 {
		errs = append(errs, errors.New("service.max_fail_limit must not be negative"))
	}
	if c.Service.RetryLimit < 1 {
		errs = append(errs, errors.New("service.retry_limit must be at least 1"))
	}
	if c.Service.StaleAfter <= 0 {
		errs = append(errs, errors.New("service.stale_after must be positive"))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if c.Kafka.GroupID == "" {
		errs = append(errs, errors.New("kafka.group_id is required"))
	}
	switch c.Kafka.OffsetReset {
	case "earliest", "latest":
	default:
		errs = append(errs, fmt.Errorf("kafka.offset_reset must be earliest or latest, got %q", c.Kafka.OffsetReset))
	}
	if c.API.URL == "" {
		errs = append(errs, errors.New("api.url is required"))
	}
	switch c.Store.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("store.compression must be none, lz4 or zstd, got %q", c.Store.Compression))
	}
	if (c.Credentials.Bundle == "") != (c.Credentials.IdentityFile == "") {
		errs = append(errs, errors.New("credentials.bundle and credentials.identity_file must be set together"))
	}
	return errors.Join(errs...)
}
