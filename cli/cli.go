package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// ErrInvalidFlags wraps errors from flag parsing. pflag has already printed
// them along with the usage.
var ErrInvalidFlags = errors.New("invalid flags")

// Config holds all the command-line flag values.
type Config struct {
	Root         string
	File         string
	DryRun       bool
	NoFormat     bool
	Undo         bool
	Reformat     bool
	NoTUI        bool
	Reload       bool
	LogLevel     string
	LogFormat    string
	Protected    []string
	PrettierPath string
}

// ParseFlags parses os.Args.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs defines and parses command-line flags using pflag, then fills
// every flag the user did not set from the environment and the project
// config file.
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{}
	flags := pflag.NewFlagSet("xapply", pflag.ContinueOnError)

	flags.StringVarP(&cfg.Root, "root", "C", ".", "Project root that all file paths are relative to.")
	flags.StringVarP(&cfg.File, "file", "f", "", "Read the change-set from a file ('-' for stdin) instead of stdin or the clipboard.")
	flags.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "Validate every change and preview it without touching the disk.")
	flags.BoolVar(&cfg.NoFormat, "no-format", false, "Write file contents exactly as given.")
	flags.BoolVar(&cfg.Reformat, "reformat", false, "Print the repaired document to stdout instead of applying it.")
	flags.BoolVar(&cfg.NoTUI, "no-tui", false, "Disable the spinner and print plain output.")
	flags.BoolVar(&cfg.Reload, "reload", false, "Ask the Neovim instance at $NVIM_LISTEN_ADDRESS to reload changed buffers.")
	flags.StringVar(&cfg.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error).")
	flags.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json.")
	flags.StringSliceVarP(&cfg.Protected, "protect", "p", nil, "Extra glob of paths that must never be modified (repeatable).")
	flags.StringVar(&cfg.PrettierPath, "prettier", "", "Path to the prettier binary.")
	flags.BoolVarP(&cfg.Undo, "undo", "u", false, "Undo the last applied change-set.")

	flags.Usage = func() {
		fmt.Println("Usage: xapply [flags] [file]")
		fmt.Println("\nApply an XML change-set from a file, stdin (pipe) or the clipboard to the project.")
		fmt.Println("\nExample: pbpaste | xapply --dry-run")
		fmt.Println("\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlags, err)
	}
	if flags.NArg() > 1 {
		return nil, fmt.Errorf("error: expected at most one input file, got %d", flags.NArg())
	}
	if flags.NArg() == 1 && !flags.Changed("file") {
		cfg.File = flags.Arg(0)
	}

	if err := cfg.layer(flags.Changed); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Undo && c.DryRun {
		return fmt.Errorf("error: --undo and --dry-run are mutually exclusive")
	}
	if c.Undo && c.Reformat {
		return fmt.Errorf("error: --undo and --reformat are mutually exclusive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("error: unknown log format %q (want text or json)", c.LogFormat)
	}

	// Normalize protected globs to slash-separated, root-relative patterns.
	for i, p := range c.Protected {
		c.Protected[i] = strings.TrimPrefix(strings.ReplaceAll(p, `\`, "/"), "./")
	}
	return nil
}
