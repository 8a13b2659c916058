package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/kamusis/opsroute/internal/catalog"
)

// ErrInvalid marks configuration that cannot be served.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Action is one entry of the action registry.
type Action struct {
	ID          string   `yaml:"id" toml:"id"`
	Interpreter string   `yaml:"interpreter" toml:"interpreter"`
	Path        string   `yaml:"path" toml:"path"`
	Args        []string `yaml:"args,omitempty" toml:"args,omitempty"`
}

type RouterConfig struct {
	MaxDistance  float64  `yaml:"max_distance" toml:"max_distance"`
	EmbedTimeout Duration `yaml:"embed_timeout" toml:"embed_timeout"`
}

type ExecutorConfig struct {
	Timeout        Duration `yaml:"timeout" toml:"timeout"`
	KillGrace      Duration `yaml:"kill_grace" toml:"kill_grace"`
	MaxOutputBytes int64    `yaml:"max_output_bytes" toml:"max_output_bytes"`
	EnvAllow       []string `yaml:"env_allow,omitempty" toml:"env_allow,omitempty"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr" toml:"addr"`
	MaxConcurrent   int      `yaml:"max_concurrent" toml:"max_concurrent"`
	ReadTimeout     Duration `yaml:"read_timeout" toml:"read_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

type AuditConfig struct {
	DBPath  string `yaml:"db_path" toml:"db_path"`
	LogPath string `yaml:"log_path" toml:"log_path"`
	Buffer  int    `yaml:"buffer" toml:"buffer"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// EmbeddingsConfig holds non-secret provider defaults. Secrets live in .env.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider,omitempty" toml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty" toml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
}

// Config is the in-memory representation of ~/.opsroute/opsroute.yaml.
type Config struct {
	ActionsRoot string           `yaml:"actions_root" toml:"actions_root"`
	Intents     []catalog.Entry  `yaml:"intents" toml:"intents"`
	Actions     []Action         `yaml:"actions" toml:"actions"`
	Router      RouterConfig     `yaml:"router" toml:"router"`
	Executor    ExecutorConfig   `yaml:"executor" toml:"executor"`
	Server      ServerConfig     `yaml:"server" toml:"server"`
	Audit       AuditConfig      `yaml:"audit" toml:"audit"`
	Log         LogConfig        `yaml:"log" toml:"log"`
	Embeddings  EmbeddingsConfig `yaml:"embeddings,omitempty" toml:"embeddings,omitempty"`
}

// HomeDir returns the absolute path to ~/.opsroute/.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".opsroute"), nil
}

// ConfigPath returns the absolute path to ~/.opsroute/opsroute.yaml.
func ConfigPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "opsroute.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// Default returns the configuration written by `opsroute init` and used when no
// config file exists.
func Default() *Config {
	var actions []Action
	for _, id := range defaultActionIDs() {
		actions = append(actions, Action{ID: id, Interpreter: "sh", Path: id + ".sh"})
	}
	return &Config{
		ActionsRoot: "~/.opsroute/actions",
		Intents:     catalog.Default(),
		Actions:     actions,
		Router: RouterConfig{
			MaxDistance:  0,
			EmbedTimeout: Duration(30 * time.Second),
		},
		Executor: ExecutorConfig{
			Timeout:        Duration(30 * time.Second),
			KillGrace:      Duration(2 * time.Second),
			MaxOutputBytes: 1 << 20,
			EnvAllow:       []string{"PATH", "HOME", "LANG", "TMPDIR", "OPSROUTE_TEMP_DIR"},
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:5006",
			MaxConcurrent:   4,
			ReadTimeout:     Duration(10 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Audit: AuditConfig{
			DBPath:  "~/.opsroute/history.db",
			LogPath: "~/.opsroute/logs/executions.jsonl",
			Buffer:  64,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

func defaultActionIDs() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range catalog.Default() {
		if !seen[e.ActionID] {
			seen[e.ActionID] = true
			out = append(out, e.ActionID)
		}
	}
	return out
}

// Load reads and parses the config file at path. An empty path means
// ~/.opsroute/opsroute.yaml; when that default file does not exist the built-in
// defaults are returned. Files ending in .toml are decoded as TOML, anything
// else as YAML. Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err) && !explicit:
		// built-in defaults
	default:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays the file onto cfg. Lists present in the file replace the
// default lists instead of merging with them.
func decode(path string, data []byte, cfg *Config) error {
	var probe Config
	if err := unmarshal(path, data, &probe); err != nil {
		return err
	}
	if probe.Intents != nil {
		cfg.Intents = nil
	}
	if probe.Actions != nil {
		cfg.Actions = nil
	}
	if probe.Executor.EnvAllow != nil {
		cfg.Executor.EnvAllow = nil
	}
	return unmarshal(path, data, cfg)
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid TOML in %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.ActionsRoot, &c.Audit.DBPath, &c.Audit.LogPath} {
		v, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// Save marshals cfg and writes it to path, creating parent directories.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
