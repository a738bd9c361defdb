// Package config loads ticketledger settings from ticketledger.yaml, the
// environment and legacy Jira property names, in that order of increasing
// precedence.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/steveyegge/ticketledger/internal/listener"
	"github.com/steveyegge/ticketledger/internal/logging"
	"github.com/steveyegge/ticketledger/internal/telemetry"
	"github.com/steveyegge/ticketledger/internal/tracker"
)

// FileName is the config file name searched for without an explicit path.
const FileName = "ticketledger.yaml"

// EnvPrefix prefixes every environment override: tracker.url is read from
// TICKETLEDGER_TRACKER_URL.
const EnvPrefix = "TICKETLEDGER"

// legacyEnv binds the property names used by older CI setups.
var legacyEnv = map[string]string{
	"tracker.url":      "JIRA_URL",
	"tracker.username": "JIRA_USERNAME",
	"tracker.token":    "JIRA_PASSWORD",
	"tracker.project":  "JIRA_PROJECT",
	"run.label":        "BUILD_NUMBER",
}

// Settings is the typed view of the configuration.
type Settings struct {
	Tracker     TrackerSettings   `mapstructure:"tracker"`
	Report      ReportSettings    `mapstructure:"report"`
	Run         RunSettings       `mapstructure:"run"`
	Workflow    WorkflowSettings  `mapstructure:"workflow"`
	DryRun      bool              `mapstructure:"dry_run"`
	Concurrency int               `mapstructure:"concurrency"`
	Log         LogSettings       `mapstructure:"log"`
	Telemetry   TelemetrySettings `mapstructure:"telemetry"`

	// File is the config file that was read, or "" when none was found.
	File string `mapstructure:"-"`

	v *viper.Viper
}

type TrackerSettings struct {
	Type     string        `mapstructure:"type"`
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Token    string        `mapstructure:"token"`
	Project  string        `mapstructure:"project"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retry    RetrySettings `mapstructure:"retry"`
}

type RetrySettings struct {
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

type ReportSettings struct {
	PublicURL     string `mapstructure:"public_url"`
	WikiRendering bool   `mapstructure:"wiki_rendering"`
}

type RunSettings struct {
	Label string `mapstructure:"label"`
}

type WorkflowSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetrySettings struct {
	Enabled bool `mapstructure:"enabled"`
	Stdout  bool `mapstructure:"stdout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tracker.type", "jira")
	v.SetDefault("tracker.url", "")
	v.SetDefault("tracker.username", "")
	v.SetDefault("tracker.token", "")
	v.SetDefault("tracker.project", "")
	v.SetDefault("tracker.timeout", 30*time.Second)
	v.SetDefault("tracker.retry.max_elapsed", time.Minute)
	v.SetDefault("report.public_url", "")
	v.SetDefault("report.wiki_rendering", true)
	v.SetDefault("run.label", "")
	v.SetDefault("workflow.enabled", false)
	v.SetDefault("workflow.file", "")
	v.SetDefault("dry_run", false)
	v.SetDefault("concurrency", listener.DefaultConcurrency)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
}

// Load reads the configuration. An explicit path must exist; without one,
// ticketledger.yaml is looked up in the working directory and then in the
// user config directory, and a missing file is not an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, errors.Wrapf(err, "binding %s", legacy)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "ticketledger"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config")
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	s.File = v.ConfigFileUsed()
	s.v = v
	return s, nil
}

// Set overrides a key after loading, as a command-line flag would.
func (s *Settings) Set(key string, value any) error {
	if s.v == nil {
		s.v = viper.New()
		setDefaults(s.v)
	}
	s.v.Set(key, value)
	return errors.Wrap(s.v.Unmarshal(s), "parsing config")
}

// Get returns the raw string value of any key, including keys that Settings
// does not model (tracker-specific options such as tracker.auto_create).
func (s *Settings) Get(key string) string {
	if s.v == nil {
		return ""
	}
	return s.v.GetString(key)
}

// Options builds listener options from the settings.
func (s *Settings) Options(logger *log.Logger) listener.Options {
	return listener.Options{
		TrackerURL:      s.trackerURL(),
		PublicURL:       s.Report.PublicURL,
		RunLabel:        s.Run.Label,
		WikiRendering:   s.Report.WikiRendering,
		WorkflowUpdates: s.Workflow.Enabled,
		DryRun:          s.DryRun,
		Concurrency:     s.Concurrency,
		Logger:          logger,
	}
}

// trackerURL stands in for the tracker URL of trackers that have none, so
// the memory tracker is not treated as unconfigured.
func (s *Settings) trackerURL() string {
	if s.Tracker.URL == "" && s.Tracker.Type == "memory" {
		return "memory://"
	}
	return s.Tracker.URL
}

// LoggingOptions builds logging options from the settings.
func (s *Settings) LoggingOptions() logging.Options {
	return logging.Options{Level: s.Log.Level, Format: s.Log.Format}
}

// TelemetryOptions builds telemetry options from the settings.
func (s *Settings) TelemetryOptions(version string) telemetry.Options {
	return telemetry.Options{
		Enabled:     s.Telemetry.Enabled,
		Stdout:      s.Telemetry.Stdout,
		ServiceName: "ticketledger",
		Version:     version,
	}
}

// TrackerConfig returns the lookup a tracker's Init reads. Keys under the
// tracker's prefix resolve to the tracker section: "jira.url" reads
// tracker.url.
func (s *Settings) TrackerConfig(ctx context.Context) *tracker.Config {
	return tracker.NewConfig(ctx, s.Tracker.Type, settingsStore{s})
}

type settingsStore struct {
	s *Settings
}

func (st settingsStore) GetConfig(_ context.Context, key string) (string, error) {
	_, sub, ok := strings.Cut(key, ".")
	if !ok {
		return "", nil
	}
	t := st.s.Tracker
	switch sub {
	case "url":
		return t.URL, nil
	case "username":
		return t.Username, nil
	case "token":
		return t.Token, nil
	case "project":
		return t.Project, nil
	case "timeout":
		return durationString(t.Timeout), nil
	case "retry.max_elapsed":
		return durationString(t.Retry.MaxElapsed), nil
	}
	return st.s.Get("tracker." + sub), nil
}

func durationString(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}
