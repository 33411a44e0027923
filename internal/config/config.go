// Package config loads, validates, and interactively creates the sync
// configuration (sync_config.json).
//
// The configuration names the test repository path, the remote
// credentials, the tag-to-field mapping (tag_config), and the constant
// fields applied to every work item (constants).
package config

import (
	"fmt"
	"sort"
)

// DefaultFileName is the configuration file looked up in the working
// directory when --config is not given.
const DefaultFileName = "sync_config.json"

// Recognized tag_config keys. Keys outside this set fail validation so a
// typo never silently drops a mapping.
var recognizedTagKeys = map[string]bool{
	"test_case":        true,
	"user_story":       true,
	"bug":              true,
	"title":            true,
	"TestedBy-Reverse": true,
	"IterationPath":    true,
	"AutomationStatus": true,
	"ignore_sync":      true,
	"System.Tags":      true,
	"Priority":         true,
}

// fieldRefs maps a tag_config key to the remote field reference it syncs
// against. Keys absent here (test_case, user_story, bug, ignore_sync,
// TestedBy-Reverse) are handled structurally, not as plain fields.
var fieldRefs = map[string]string{
	"title":            "System.Title",
	"IterationPath":    "System.IterationPath",
	"AutomationStatus": "Custom.AutomationStatus",
	"System.Tags":      "System.Tags",
	"Priority":         "Microsoft.VSTS.Common.Priority",
}

// Credentials identify the remote organization and project and carry the
// personal access token.
type Credentials struct {
	PersonalAccessToken string `json:"personal_access_token"`
	OrganizationName    string `json:"organization_name"`
	ProjectName         string `json:"project_name"`
}

// SyncSettings tune the engine; every field has a working default.
type SyncSettings struct {
	// Workers caps concurrent remote fetches.
	Workers int `json:"workers,omitempty"`

	// TimeoutSeconds bounds each remote request attempt.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`

	// MaxAttempts bounds retries on transient remote failures.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// AutomatedValue is the AutomationStatus value that marks a scenario
	// runnable by the trigger.
	AutomatedValue string `json:"automated_value,omitempty"`
}

// Config is the validated synchronization configuration.
type Config struct {
	// Path is the root of the test repository to scan.
	Path string `json:"path"`

	Credentials Credentials `json:"credentials"`

	// TagConfig maps a recognized key to the local tag name carrying it in
	// annotation blocks (e.g. "test_case" -> "tc"). Local tags not named
	// here pass through synchronization untouched.
	TagConfig map[string]string `json:"tag_config"`

	// Constants are field references applied identically to every work
	// item (area path, team project) plus the staging-file section
	// headers.
	Constants map[string]string `json:"constants"`

	Sync SyncSettings `json:"sync,omitempty"`
}

// ConfigError reports malformed or missing required configuration.
// It is fatal to the whole session.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "invalid configuration"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Validate checks structural requirements. It is called by Load and by
// BuildConfig, so a Config in circulation is always valid.
func (c *Config) Validate() error {
	if c.Path == "" {
		return &ConfigError{Reason: "path cannot be empty"}
	}
	if c.Credentials.PersonalAccessToken == "" {
		return &ConfigError{Reason: "credentials.personal_access_token cannot be empty"}
	}
	if c.Credentials.OrganizationName == "" {
		return &ConfigError{Reason: "credentials.organization_name cannot be empty"}
	}
	if c.Credentials.ProjectName == "" {
		return &ConfigError{Reason: "credentials.project_name cannot be empty"}
	}

	if len(c.TagConfig) == 0 {
		return &ConfigError{Reason: "tag_config cannot be empty"}
	}
	var unknown []string
	for key := range c.TagConfig {
		if !recognizedTagKeys[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &ConfigError{Reason: fmt.Sprintf("unrecognized tag_config keys: %v", unknown)}
	}
	for _, required := range []string{"test_case", "title"} {
		if c.TagConfig[required] == "" {
			return &ConfigError{Reason: fmt.Sprintf("tag_config.%s is required", required)}
		}
	}
	return nil
}

// Tag returns the local tag name configured for key, or "" when the key
// is not mapped.
func (c *Config) Tag(key string) string {
	return c.TagConfig[key]
}

// FieldMapping binds a local tag name to its remote field reference.
type FieldMapping struct {
	Tag string
	Ref string
}

// SyncedFields returns the field mappings the engine diffs, in a stable
// order. Only keys present in tag_config participate; everything else is
// passed through untouched.
func (c *Config) SyncedFields() []FieldMapping {
	keys := make([]string, 0, len(fieldRefs))
	for key := range fieldRefs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []FieldMapping
	for _, key := range keys {
		if key == "title" {
			// The title syncs against the scenario title line, not a tag.
			continue
		}
		if tag := c.TagConfig[key]; tag != "" {
			out = append(out, FieldMapping{Tag: tag, Ref: fieldRefs[key]})
		}
	}
	return out
}

// ConstantFields returns the constants that are remote field references
// (dotted names), excluding staging-section settings.
func (c *Config) ConstantFields() map[string]string {
	out := make(map[string]string)
	for ref, value := range c.Constants {
		switch ref {
		case "settings_section", "test_cases_section":
			continue
		}
		out[ref] = value
	}
	return out
}

// IgnoreTag returns the tag name that excludes a scenario from sync.
func (c *Config) IgnoreTag() string {
	if tag := c.TagConfig["ignore_sync"]; tag != "" {
		return tag
	}
	return "ignore_sync"
}

// AutomationTag returns the local tag carrying the automation status.
func (c *Config) AutomationTag() string {
	return c.TagConfig["AutomationStatus"]
}

// AutomatedValue returns the tag value marking a scenario automated.
func (c *Config) AutomatedValue() string {
	if c.Sync.AutomatedValue != "" {
		return c.Sync.AutomatedValue
	}
	return "Automated"
}

// applyDefaults fills unset engine tuning knobs.
func (c *Config) applyDefaults() {
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = 4
	}
	if c.Sync.TimeoutSeconds <= 0 {
		c.Sync.TimeoutSeconds = 10
	}
	if c.Sync.MaxAttempts <= 0 {
		c.Sync.MaxAttempts = 4
	}
}
