package config

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Answers holds the raw values collected by the first-run wizard.
// BuildConfig turns them into a validated Config, so the mapping is
// testable without a terminal.
type Answers struct {
	Path                string
	PersonalAccessToken string
	OrganizationName    string
	ProjectName         string

	TestCaseTag   string
	UserStoryTag  string
	BugTag        string
	TitlePrefix   string
	AutomationTag string
	IgnoreTag     string
	SystemTagsTag string
	PriorityTag   string
	IterationTag  string

	AreaPath         string
	TeamProject      string
	SettingsSection  string
	TestCasesSection string
}

// DefaultAnswers pre-fills the wizard with the conventional tag names.
func DefaultAnswers() Answers {
	return Answers{
		Path:             "tests",
		TestCaseTag:      "tc",
		UserStoryTag:     "story",
		BugTag:           "bug",
		TitlePrefix:      "Cenário",
		AutomationTag:    "AutomationStatus",
		IgnoreTag:        "ignore_sync",
		SystemTagsTag:    "tags",
		PriorityTag:      "priority",
		IterationTag:     "sprint",
		SettingsSection:  "*** Settings ***\n",
		TestCasesSection: "\n*** Test Cases ***\n",
	}
}

// BuildConfig converts wizard answers into a validated Config. Empty
// optional tag answers simply leave that mapping out, so those tags pass
// through synchronization untouched.
func BuildConfig(a Answers) (*Config, error) {
	tagConfig := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			tagConfig[key] = value
		}
	}
	set("test_case", a.TestCaseTag)
	set("user_story", a.UserStoryTag)
	set("bug", a.BugTag)
	set("title", a.TitlePrefix)
	set("AutomationStatus", a.AutomationTag)
	set("ignore_sync", a.IgnoreTag)
	set("System.Tags", a.SystemTagsTag)
	set("Priority", a.PriorityTag)
	set("IterationPath", a.IterationTag)

	constants := map[string]string{}
	if a.AreaPath != "" {
		constants["System.AreaPath"] = a.AreaPath
	}
	if a.TeamProject != "" {
		constants["System.TeamProject"] = a.TeamProject
	}
	if a.SettingsSection != "" {
		constants["settings_section"] = a.SettingsSection
	}
	if a.TestCasesSection != "" {
		constants["test_cases_section"] = a.TestCasesSection
	}

	cfg := &Config{
		Path: a.Path,
		Credentials: Credentials{
			PersonalAccessToken: a.PersonalAccessToken,
			OrganizationName:    a.OrganizationName,
			ProjectName:         a.ProjectName,
		},
		TagConfig: tagConfig,
		Constants: constants,
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// wizardForm builds the interactive prompt sequence over the given
// answers.
func wizardForm(a *Answers) *huh.Form {
	required := func(name string) func(string) error {
		return func(s string) error {
			if s == "" {
				return fmt.Errorf("%s cannot be empty", name)
			}
			return nil
		}
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Test repository").
				Description("Folder with the test files to synchronize").
				Validate(required("path")).
				Value(&a.Path),
			huh.NewInput().
				Title("Personal access token").
				Description("Needs work-item read and write permission").
				EchoMode(huh.EchoModePassword).
				Validate(required("personal access token")).
				Value(&a.PersonalAccessToken),
			huh.NewInput().
				Title("Organization").
				Description("The name after https://dev.azure.com/").
				Validate(required("organization")).
				Value(&a.OrganizationName),
			huh.NewInput().
				Title("Project").
				Description("The name after the organization in the URL").
				Validate(required("project")).
				Value(&a.ProjectName),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Test case tag").
				Description("Annotation key holding the work-item id").
				Validate(required("test case tag")).
				Value(&a.TestCaseTag),
			huh.NewInput().
				Title("User story tag").
				Value(&a.UserStoryTag),
			huh.NewInput().
				Title("Bug tag").
				Value(&a.BugTag),
			huh.NewInput().
				Title("Scenario title prefix").
				Validate(required("title prefix")).
				Value(&a.TitlePrefix),
			huh.NewInput().
				Title("Automation status tag").
				Value(&a.AutomationTag),
			huh.NewInput().
				Title("Ignore tag").
				Description("Scenarios carrying this tag are never synchronized").
				Value(&a.IgnoreTag),
			huh.NewInput().
				Title("System tags tag").
				Value(&a.SystemTagsTag),
			huh.NewInput().
				Title("Priority tag").
				Value(&a.PriorityTag),
			huh.NewInput().
				Title("Iteration path tag").
				Value(&a.IterationTag),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Area path").
				Description("Applied to every synchronized work item").
				Value(&a.AreaPath),
			huh.NewInput().
				Title("Team project").
				Value(&a.TeamProject),
		),
	)
}

// RunWizard walks the user through first-run configuration and returns
// the resulting validated Config. Persistence is the caller's business.
func RunWizard() (*Config, error) {
	answers := DefaultAnswers()
	if err := wizardForm(&answers).Run(); err != nil {
		return nil, fmt.Errorf("configuration wizard aborted: %w", err)
	}
	return BuildConfig(answers)
}
