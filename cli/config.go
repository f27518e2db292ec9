package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectFileName is the optional per-project config file in the root.
const ProjectFileName = ".xapply.yaml"

// envPrefix prefixes every environment variable read by the cli.
const envPrefix = "XAPPLY_"

// projectFile mirrors the keys accepted in ProjectFileName. Nil means unset.
type projectFile struct {
	DryRun       *bool    `yaml:"dry_run"`
	NoFormat     *bool    `yaml:"no_format"`
	NoTUI        *bool    `yaml:"no_tui"`
	Reload       *bool    `yaml:"reload"`
	LogLevel     *string  `yaml:"log_level"`
	LogFormat    *string  `yaml:"log_format"`
	Protected    []string `yaml:"protected"`
	PrettierPath *string  `yaml:"prettier"`
}

// loadProjectFile reads ProjectFileName from root. A missing file is not
// an error.
func loadProjectFile(root string) (*projectFile, error) {
	data, err := os.ReadFile(filepath.Join(root, ProjectFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &projectFile{}, nil
		}
		return nil, err
	}
	var pf projectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ProjectFileName, err)
	}
	return &pf, nil
}

// layer fills every field whose flag was not set, taking the environment
// first and the project file second. The defaults stay otherwise.
func (c *Config) layer(changed func(name string) bool) error {
	// Try to load .env file (ignore errors - it's optional)
	_ = godotenv.Load(".env")

	if !changed("root") {
		c.Root = getEnv("ROOT", c.Root)
	}
	pf, err := loadProjectFile(c.Root)
	if err != nil {
		return err
	}

	boolSetting(&c.DryRun, changed("dry-run"), "DRY_RUN", pf.DryRun)
	boolSetting(&c.NoFormat, changed("no-format"), "NO_FORMAT", pf.NoFormat)
	boolSetting(&c.NoTUI, changed("no-tui"), "NO_TUI", pf.NoTUI)
	boolSetting(&c.Reload, changed("reload"), "RELOAD", pf.Reload)
	stringSetting(&c.LogLevel, changed("log-level"), "LOG_LEVEL", pf.LogLevel)
	stringSetting(&c.LogFormat, changed("log-format"), "LOG_FORMAT", pf.LogFormat)
	stringSetting(&c.PrettierPath, changed("prettier"), "PRETTIER", pf.PrettierPath)

	if !changed("protect") {
		if v := getEnv("PROTECTED", ""); v != "" {
			c.Protected = splitList(v)
		} else if len(pf.Protected) > 0 {
			c.Protected = pf.Protected
		}
	}
	return nil
}

func boolSetting(dst *bool, flagSet bool, key string, file *bool) {
	if flagSet {
		return
	}
	if file != nil {
		*dst = *file
	}
	*dst = getEnvAsBool(key, *dst)
}

func stringSetting(dst *string, flagSet bool, key string, file *string) {
	if flagSet {
		return
	}
	if file != nil {
		*dst = *file
	}
	*dst = getEnv(key, *dst)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(envPrefix + key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
