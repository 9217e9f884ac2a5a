package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Afrawles/crisisreport/internal/freshness"
)

const (
	DefaultProjectFile = "config/project_configuration.yml"
	DefaultUserAgent   = "crisis-casestudy"
	DefaultSite        = "prod"
	DefaultSpreadsheet = "reports/crisis_datasets.xlsx"
)

type Config struct {
	HDX            HDXConfig
	Project        ProjectConfig
	Output         OutputConfig
	PushgatewayURL string
}

// HDXConfig holds what is needed to talk to the catalog. None of it changes
// how datasets are classified.
type HDXConfig struct {
	APIKey    string
	UserAgent string
	Preprefix string
	Site      string
}

type OutputConfig struct {
	Directory string
	Format    []string // csv, json, html
}

// ProjectConfig is the YAML project file.
type ProjectConfig struct {
	EndDays            int            `yaml:"enddays"`
	ActivityFetchLimit int            `yaml:"activity_fetch_limit"`
	IgnoreUsers        []string       `yaml:"ignore_users"`
	UsersScrapers      []UserScrapers `yaml:"users_scrapers"`
	Spreadsheet        string         `yaml:"spreadsheet"`
	SheetName          string         `yaml:"sheetname"`
	CrisisData         Crises         `yaml:"crisisdata"`
}

type UserScrapers struct {
	ID       string   `yaml:"id"`
	Scrapers []string `yaml:"scrapers"`
}

type Crisis struct {
	Name      string   `yaml:"-"`
	ID        string   `yaml:"id"`
	StartDate string   `yaml:"startdate"`
	Countries []string `yaml:"countries"`
}

// Crises keeps crisisdata entries in the order they appear in the file,
// which is the order of the report.
type Crises []Crisis

func (c *Crises) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: crisisdata must be a mapping of crisis name to definition", value.Line)
	}
	crises := make(Crises, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var crisis Crisis
		if err := value.Content[i+1].Decode(&crisis); err != nil {
			return fmt.Errorf("crisis %q: %w", value.Content[i].Value, err)
		}
		crisis.Name = value.Content[i].Value
		crises = append(crises, crisis)
	}
	*c = crises
	return nil
}

// Load reads the project file at path and fills in defaults.
func Load(path string) (ProjectConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ProjectConfig{}, err
	}
	var p ProjectConfig
	if err := yaml.Unmarshal(b, &p); err != nil {
		return ProjectConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if p.ActivityFetchLimit == 0 {
		p.ActivityFetchLimit = freshness.DefaultFetchLimit
	}
	if p.Spreadsheet == "" {
		p.Spreadsheet = DefaultSpreadsheet
	}
	return p, nil
}

func LoadFromEnv() *Config {
	cfg := &Config{
		HDX: HDXConfig{
			APIKey:    os.Getenv("HDX_KEY"),
			UserAgent: getEnvOrDefault("USER_AGENT", DefaultUserAgent),
			Preprefix: os.Getenv("PREPREFIX"),
			Site:      getEnvOrDefault("HDX_SITE", DefaultSite),
		},
		Output: OutputConfig{
			Directory: getEnvOrDefault("OUTPUT_DIR", "reports"),
		},
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	if formats := os.Getenv("OUTPUT_FORMAT"); formats != "" {
		cfg.Output.Format = splitList(formats)
	}

	return cfg
}

// Validate checks run-wide settings. Crisis entries are checked one by one
// while the report runs.
func (c *Config) Validate() error {
	var errs []error

	if c.HDX.Site == "" {
		errs = append(errs, errors.New("HDX site is not set"))
	}
	if c.Project.EndDays <= 0 {
		errs = append(errs, fmt.Errorf("enddays must be positive, got %d", c.Project.EndDays))
	}
	if c.Project.ActivityFetchLimit <= 0 {
		errs = append(errs, fmt.Errorf("activity_fetch_limit must be positive, got %d", c.Project.ActivityFetchLimit))
	}
	if c.Project.SheetName == "" {
		errs = append(errs, errors.New("sheetname is not set"))
	}
	if len(c.Project.CrisisData) == 0 {
		errs = append(errs, errors.New("crisisdata has no crises"))
	}
	for _, us := range c.Project.UsersScrapers {
		if us.ID == "" {
			errs = append(errs, errors.New("users_scrapers entry without id"))
		}
	}
	for _, format := range c.Output.Format {
		switch format {
		case "csv", "json", "html":
		default:
			errs = append(errs, fmt.Errorf("unknown output format %q", format))
		}
	}

	return errors.Join(errs...)
}

func (p ProjectConfig) Definitions() []freshness.Definition {
	defs := make([]freshness.Definition, 0, len(p.CrisisData))
	for _, c := range p.CrisisData {
		defs = append(defs, freshness.Definition{
			ID:        c.ID,
			Name:      c.Name,
			StartDate: c.StartDate,
			Countries: c.Countries,
		})
	}
	return defs
}

func (p ProjectConfig) ScraperExceptions() []freshness.ScraperException {
	exceptions := make([]freshness.ScraperException, 0, len(p.UsersScrapers))
	for _, us := range p.UsersScrapers {
		exceptions = append(exceptions, freshness.ScraperException{
			UserID:        us.ID,
			Organizations: us.Scrapers,
		})
	}
	return exceptions
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
