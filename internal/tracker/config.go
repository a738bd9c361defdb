package tracker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Config holds configuration for a tracker integration. It scopes lookups
// to the tracker's key prefix and falls back to environment variables.
type Config struct {
	// Prefix is the config key prefix for this tracker (e.g., "jira").
	Prefix string

	// Store provides access to the config storage.
	Store ConfigStore

	// Ctx is passed to the store on every lookup.
	Ctx context.Context
}

// ConfigStore provides read access to configuration values by full key.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

// MapStore is a ConfigStore backed by a plain map.
type MapStore map[string]string

// GetConfig implements ConfigStore.
func (m MapStore) GetConfig(_ context.Context, key string) (string, error) {
	return m[key], nil
}

// NewConfig creates a new tracker config with the given prefix and store.
func NewConfig(ctx context.Context, prefix string, store ConfigStore) *Config {
	return &Config{
		Prefix: prefix,
		Store:  store,
		Ctx:    ctx,
	}
}

// Get retrieves a config value by key, checking the config store and then
// the environment. The key does not include the tracker prefix:
// cfg.Get("url") for prefix "jira" looks up "jira.url" and falls back to
// JIRA_URL.
func (c *Config) Get(key string) (string, error) {
	fullKey := c.Prefix + "." + key

	if c.Store != nil {
		value, err := c.Store.GetConfig(c.context(), fullKey)
		if err != nil {
			return "", errors.Wrapf(err, "read %s", fullKey)
		}
		if value != "" {
			return value, nil
		}
	}

	if value := os.Getenv(c.envVarName(key)); value != "" {
		return value, nil
	}

	return "", nil
}

// GetRequired is like Get but returns an error if the value is empty. The
// error tells the user how to set the value.
func (c *Config) GetRequired(key string) (string, error) {
	value, err := c.Get(key)
	if err != nil {
		return "", err
	}
	if value == "" {
		fullKey := c.Prefix + "." + key
		hint := fmt.Sprintf("Set %s in ticketledger.yaml\nOr: export %s=VALUE", fullKey, c.envVarName(key))
		return "", errors.Newf("%s not configured\n%s", fullKey, hint)
	}
	return value, nil
}

// GetOr returns the value for key, or def when it is not set.
func (c *Config) GetOr(key, def string) string {
	value, err := c.Get(key)
	if err != nil || value == "" {
		return def
	}
	return value
}

func (c *Config) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// envVarName converts a config key to its environment variable name.
// For prefix "jira" and key "retry.max_elapsed" it returns
// "JIRA_RETRY_MAX_ELAPSED".
func (c *Config) envVarName(key string) string {
	envKey := strings.ToUpper(c.Prefix + "_" + key)
	return strings.ReplaceAll(envKey, ".", "_")
}

// CommonConfig defines configuration keys shared by trackers.
var CommonConfig = struct {
	URL          string
	Username     string
	Token        string
	Timeout      string
	RetryElapsed string
}{
	URL:          "url",
	Username:     "username",
	Token:        "token",
	Timeout:      "timeout",
	RetryElapsed: "retry.max_elapsed",
}
