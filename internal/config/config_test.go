package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// validAnswers returns wizard answers for a complete configuration.
func validAnswers() Answers {
	a := DefaultAnswers()
	a.Path = "tests"
	a.PersonalAccessToken = "pat-123"
	a.OrganizationName = "acme"
	a.ProjectName = "logistics"
	a.AreaPath = "acme\\Transportation"
	a.TeamProject = "logistics"
	return a
}

func TestBuildConfigFromAnswers(t *testing.T) {
	cfg, err := BuildConfig(validAnswers())
	if err != nil {
		t.Fatalf("BuildConfig failed: %v", err)
	}

	if cfg.Tag("test_case") != "tc" {
		t.Errorf("test_case tag = %q, want tc", cfg.Tag("test_case"))
	}
	if cfg.Credentials.OrganizationName != "acme" {
		t.Errorf("organization = %q", cfg.Credentials.OrganizationName)
	}
	if cfg.Sync.Workers != 4 {
		t.Errorf("workers default = %d, want 4", cfg.Sync.Workers)
	}
	if cfg.ConstantFields()["System.AreaPath"] != "acme\\Transportation" {
		t.Errorf("constants = %v", cfg.ConstantFields())
	}
	if _, ok := cfg.ConstantFields()["settings_section"]; ok {
		t.Error("section headers must not be treated as remote fields")
	}
}

func TestBuildConfigRejectsMissingCredentials(t *testing.T) {
	a := validAnswers()
	a.PersonalAccessToken = ""

	_, err := BuildConfig(a)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	cfg, err := BuildConfig(validAnswers())
	if err != nil {
		t.Fatalf("BuildConfig failed: %v", err)
	}
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Credentials.PersonalAccessToken != "pat-123" {
		t.Errorf("token = %q", loaded.Credentials.PersonalAccessToken)
	}
	if loaded.Tag("user_story") != "story" {
		t.Errorf("user_story tag = %q", loaded.Tag("user_story"))
	}
	if loaded.Sync.TimeoutSeconds != 10 {
		t.Errorf("timeout default = %d", loaded.Sync.TimeoutSeconds)
	}

	// No stray temp files after an atomic save.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the config file in %s, found %d entries", dir, len(entries))
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound = false for %v", err)
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := Load(path)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if IsNotFound(err) {
		t.Error("malformed JSON must not be reported as missing file")
	}
}

func TestValidateRejectsUnknownTagKeys(t *testing.T) {
	cfg, err := BuildConfig(validAnswers())
	if err != nil {
		t.Fatalf("BuildConfig failed: %v", err)
	}
	cfg.TagConfig["not_a_thing"] = "x"

	err = cfg.Validate()
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestSyncedFieldsFollowTagConfig(t *testing.T) {
	cfg, err := BuildConfig(validAnswers())
	if err != nil {
		t.Fatalf("BuildConfig failed: %v", err)
	}

	fields := cfg.SyncedFields()
	refs := make(map[string]string)
	for _, f := range fields {
		refs[f.Ref] = f.Tag
	}
	if refs["Custom.AutomationStatus"] != "AutomationStatus" {
		t.Errorf("automation mapping = %v", refs)
	}
	if refs["Microsoft.VSTS.Common.Priority"] != "priority" {
		t.Errorf("priority mapping = %v", refs)
	}
	if _, ok := refs["System.Title"]; ok {
		t.Error("title must not be diffed as a tag field")
	}

	// Dropping a mapping drops the field from sync.
	delete(cfg.TagConfig, "Priority")
	for _, f := range cfg.SyncedFields() {
		if f.Ref == "Microsoft.VSTS.Common.Priority" {
			t.Error("unmapped field still synced")
		}
	}
}
