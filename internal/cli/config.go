package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration file. Relative paths are
// resolved against the file's directory. Command-line flags override it.
type Config struct {
	// Root restricts file: modules to this directory tree.
	Root string `yaml:"root"`

	// ImportMap maps bare specifiers or prefixes ending in "/" to paths or
	// URLs.
	ImportMap map[string]string `yaml:"import_map"`

	// Timeout bounds a whole run ("30s").
	Timeout string `yaml:"timeout"`

	// AllowRemote enables http: and https: modules.
	AllowRemote bool `yaml:"allow_remote"`

	// Lock is the lockfile path. FrozenLock rejects modules missing from it.
	Lock       string `yaml:"lock"`
	FrozenLock bool   `yaml:"frozen_lock"`

	// TraceDB is the SQLite database runs are recorded to.
	TraceDB string `yaml:"trace_db"`
}

// LoadConfig reads a config file. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Timeout); err != nil {
			return nil, fmt.Errorf("config %s: timeout: %w", path, err)
		}
	}

	dir := filepath.Dir(path)
	cfg.Root = relativeTo(dir, cfg.Root)
	cfg.Lock = relativeTo(dir, cfg.Lock)
	cfg.TraceDB = relativeTo(dir, cfg.TraceDB)
	return &cfg, nil
}

func relativeTo(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	return filepath.Join(dir, p)
}

// HostOptions holds the flags shared by run, check, and info.
type HostOptions struct {
	*RootOptions
	ConfigPath  string
	Root        string
	AllowRemote bool
	Lock        string
	FrozenLock  bool
	TraceDB     string
	Timeout     time.Duration
	ImportMap   map[string]string
}

func addHostFlags(cmd *cobra.Command, o *HostOptions) {
	cmd.Flags().StringVar(&o.ConfigPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&o.Root, "root", "", "restrict file modules to this directory")
	cmd.Flags().BoolVar(&o.AllowRemote, "allow-remote", false, "allow http and https modules")
	cmd.Flags().StringVar(&o.Lock, "lock", "", "verify module hashes against this lockfile")
	cmd.Flags().BoolVar(&o.FrozenLock, "frozen-lock", false, "fail on modules missing from the lockfile")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 0, "bound the whole run (0 means no limit)")
	cmd.Flags().StringToStringVar(&o.ImportMap, "import", nil, "import map entry bare=target (repeatable)")
}

// Settings is the effective configuration of one command: the config file
// with explicitly set flags applied on top.
type Settings struct {
	Root        string
	ImportMap   map[string]string
	Timeout     time.Duration
	AllowRemote bool
	Lock        string
	FrozenLock  bool
	TraceDB     string
}

// Settings merges the config file (if any) with the flags cmd saw.
func (o *HostOptions) Settings(cmd *cobra.Command) (Settings, error) {
	var s Settings
	if o.ConfigPath != "" {
		cfg, err := LoadConfig(o.ConfigPath)
		if err != nil {
			return Settings{}, WrapExitError(ExitCommandError, "invalid config", err)
		}
		s = Settings{
			Root:        cfg.Root,
			ImportMap:   cfg.ImportMap,
			AllowRemote: cfg.AllowRemote,
			Lock:        cfg.Lock,
			FrozenLock:  cfg.FrozenLock,
			TraceDB:     cfg.TraceDB,
		}
		if cfg.Timeout != "" {
			s.Timeout, _ = time.ParseDuration(cfg.Timeout)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("root") {
		s.Root = o.Root
	}
	if flags.Changed("allow-remote") {
		s.AllowRemote = o.AllowRemote
	}
	if flags.Changed("lock") {
		s.Lock = o.Lock
	}
	if flags.Changed("frozen-lock") {
		s.FrozenLock = o.FrozenLock
	}
	if flags.Changed("timeout") {
		s.Timeout = o.Timeout
	}
	if flags.Changed("trace-db") {
		s.TraceDB = o.TraceDB
	}
	if flags.Changed("import") {
		merged := make(map[string]string, len(s.ImportMap)+len(o.ImportMap))
		for k, v := range s.ImportMap {
			merged[k] = v
		}
		for k, v := range o.ImportMap {
			merged[k] = v
		}
		s.ImportMap = merged
	}

	if s.FrozenLock && s.Lock == "" {
		return Settings{}, NewExitError(ExitCommandError, "--frozen-lock requires --lock")
	}
	if s.Timeout < 0 {
		return Settings{}, NewExitError(ExitCommandError, "timeout must not be negative")
	}
	return s, nil
}
