// Package config handles loading and parsing repository configuration.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pullsage/pullsage/github"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default path for the pullsage config file.
const DefaultConfigPath = ".github/pullsage.yml"

// ConfigParseError indicates a configuration file exists but contains invalid
// content. This is distinct from "file not found" errors, which should use
// default config.
type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("invalid config at %s: %v", e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}

// Config represents the repository configuration for the reviewer.
type Config struct {
	// Enabled determines if the reviewer is enabled for this repository.
	Enabled bool `yaml:"enabled"`
	// Exclude is a list of glob patterns for files to skip during review.
	// Example: ["vendor/**", "*.gen.go", "docs/**"]
	Exclude []string `yaml:"exclude"`
	// Instructions provides custom guidance for the reviewer, such as
	// tone or strictness. Example: "Focus on security. Be terse."
	Instructions string `yaml:"instructions"`
	// MaxOutputTokens caps the length of each generated file review.
	// Zero means the built-in default.
	MaxOutputTokens int `yaml:"max_output_tokens"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
	}
}

// ContentFetcher fetches a file's content from a repository at a ref.
// Satisfied by *github.Client.
type ContentFetcher interface {
	FetchFileContent(ctx context.Context, token *github.InstallationToken, owner, repo, path, ref string) (string, error)
}

// Loader loads configuration from repositories.
type Loader struct {
	client ContentFetcher
}

// NewLoader creates a new config loader.
func NewLoader(client ContentFetcher) *Loader {
	return &Loader{client: client}
}

// Load fetches and parses the config from a repository.
// If the config file doesn't exist, returns the default config.
// If the config file exists but is invalid, returns a ConfigParseError.
func (l *Loader) Load(ctx context.Context, token *github.InstallationToken, owner, repo, ref string) (*Config, error) {
	content, err := l.client.FetchFileContent(ctx, token, owner, repo, DefaultConfigPath, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config: %w", err)
	}

	if content == "" {
		return DefaultConfig(), nil
	}

	cfg, err := Parse([]byte(content))
	if err != nil {
		// Wrap parse errors so callers can distinguish from fetch errors
		return nil, &ConfigParseError{Path: DefaultConfigPath, Err: err}
	}

	return cfg, nil
}

// Parse parses a config from YAML content.
func Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.MaxOutputTokens < 0 {
		return nil, fmt.Errorf("max_output_tokens must not be negative: %d", cfg.MaxOutputTokens)
	}

	return cfg, nil
}

// ShouldExcludeFile returns true if the file path matches any exclude pattern.
func (c *Config) ShouldExcludeFile(path string) bool {
	for _, pattern := range c.Exclude {
		// Handle ** patterns by checking if any path segment matches
		if strings.Contains(pattern, "**") {
			prefix := strings.Split(pattern, "**")[0]
			if prefix != "" && strings.HasPrefix(path, prefix) {
				suffix := strings.Split(pattern, "**")[1]
				if suffix == "" || strings.HasSuffix(path, strings.TrimPrefix(suffix, "/")) {
					return true
				}
			}
			// Also try matching without ** (e.g., "vendor/**" matches "vendor/foo.go")
			if prefix != "" && strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")) {
				return true
			}
		}

		// Standard glob matching
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}

		// Also try matching just the filename for patterns like "*.gen.go"
		if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}
