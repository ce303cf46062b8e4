package yaradb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"
)

// Default file names, matching §6's external interfaces.
const (
	DefaultSnapshotFile = "yaradb_storage.json"
	DefaultWALFile      = "yaradb_wal"

	// ConfigFileName is the project-level JSONC config file name. This
	// is a module-level ambient concern layered on top of the one
	// environment variable the spec this package implements actually
	// names (DATA_DIR); see SPEC_FULL.md's AMBIENT STACK / Configuration.
	ConfigFileName = ".yaradb.json"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("failed to read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDataDirEmpty       = errors.New("data_dir must not be empty")
)

// Config configures an [Engine]. The zero value is not valid; build one
// with [DefaultConfig] or [LoadConfig].
type Config struct {
	// DataDir is where the snapshot and WAL files live. Corresponds to
	// the DATA_DIR environment variable (§6); default ".".
	DataDir string `json:"data_dir"`

	// CheckpointInterval drives the engine's periodic background
	// checkpoint goroutine (a supplemented feature; see
	// SPEC_FULL.md's SUPPLEMENTED FEATURES #3). Zero disables it —
	// checkpoints then only happen on [Engine.Close].
	CheckpointInterval time.Duration `json:"checkpoint_interval_ms"`

	// WALSyncEveryWrite defaults to true (the spec's durability
	// contract: fsync before every commit, §4.4). Setting it false is
	// only meant for throwaway test/benchmark engines that can tolerate
	// losing uncommitted writes on crash.
	WALSyncEveryWrite bool `json:"wal_sync_every_write"`

	// LockTimeout bounds how long Open waits to acquire the data
	// directory; unused today (this engine has no cross-process lock,
	// see DESIGN.md) but carried for parity with the teacher's
	// Config.LockTimeout knob and reserved for a future multi-process
	// guard.
	LockTimeout time.Duration `json:"-"`
}

// DefaultConfig returns the default configuration: current directory,
// fsync on every WAL write, no periodic checkpoint.
func DefaultConfig() Config {
	return Config{
		DataDir:           ".",
		WALSyncEveryWrite: true,
		LockTimeout:       2 * time.Second,
	}
}

// LoadConfigInput holds the inputs for [LoadConfig].
type LoadConfigInput struct {
	DataDirOverride string            // explicit DataDir override (e.g. a CLI flag)
	ConfigPath      string            // explicit config file path (e.g. -config flag)
	Env             map[string]string // environment variables, keyed by name
}

// LoadConfig loads configuration with the following precedence (highest
// wins):
//  1. Defaults
//  2. Global user config (~/.config/yaradb/config.json, or
//     $XDG_CONFIG_HOME/yaradb/config.json)
//  3. Project config file: the explicit ConfigPath if non-empty (it must
//     exist), otherwise .yaradb.json in the current directory if present.
//     Only one of the two is read.
//  4. DATA_DIR environment variable
//  5. DataDirOverride (a CLI flag, say)
func LoadConfig(input LoadConfigInput) (Config, error) {
	cfg := DefaultConfig()

	globalCfg, _, err := loadGlobalConfig(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, _, err := loadProjectConfig(input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg = mergeConfig(cfg, projectCfg)

	if dataDir := input.Env["DATA_DIR"]; dataDir != "" {
		cfg.DataDir = dataDir
	}

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getGlobalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "yaradb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "yaradb", "config.json")
	}

	return ""
}

func loadGlobalConfig(env map[string]string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil || !loaded {
		return Config{}, "", err
	}

	return cfg, path, nil
}

func loadProjectConfig(explicitPath string) (Config, string, error) {
	var (
		path      string
		mustExist bool
	)

	if explicitPath != "" {
		path = explicitPath
		mustExist = true

		if _, err := os.Stat(path); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, explicitPath)
		}
	} else {
		path = ConfigFileName
		mustExist = false
	}

	cfg, loaded, err := loadConfigFile(path, mustExist)
	if err != nil || !loaded {
		return Config{}, "", err
	}

	return cfg, path, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var overlay struct {
		DataDir            string `json:"data_dir"`
		CheckpointInterval *int   `json:"checkpoint_interval_ms"`
		WALSyncEveryWrite  *bool  `json:"wal_sync_every_write"`
	}

	if err := json.Unmarshal(standardized, &overlay); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var cfg Config

	cfg.DataDir = overlay.DataDir
	if overlay.CheckpointInterval != nil {
		cfg.CheckpointInterval = time.Duration(*overlay.CheckpointInterval) * time.Millisecond
	}

	if overlay.WALSyncEveryWrite != nil {
		cfg.WALSyncEveryWrite = *overlay.WALSyncEveryWrite
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.CheckpointInterval != 0 {
		base.CheckpointInterval = overlay.CheckpointInterval
	}

	base.WALSyncEveryWrite = base.WALSyncEveryWrite || overlay.WALSyncEveryWrite

	return base
}

func validateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrDataDirEmpty
	}

	return nil
}

func (c Config) snapshotPath() string {
	return filepath.Join(c.DataDir, DefaultSnapshotFile)
}

func (c Config) walPath() string {
	return filepath.Join(c.DataDir, DefaultWALFile)
}
