package boxtincfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cojen/boxtin/boxtinlog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the static configuration Load assembles: where the policy rule
// file lives, which Controller to activate, and how verbosely to log (spec
// §6's premain args and §7's transform hook both need these at startup,
// before any class has been seen). Neither command in cmd/ calls Load.
//
// Precedence (highest to lowest): BOXTIN_* environment variables, a config
// file, then these defaults.
type Config struct {
	// PolicyFile is the path to a YAML policy document (rules.go's
	// PolicyDoc) loaded onto the active Controller's Rules.
	PolicyFile string `mapstructure:"policy_file" yaml:"policy_file"`
	// Controller names the registered agent.ControllerFactory to build
	// (spec §6's controller-class string), with optional "=args" already
	// split off by agent.Premain; here it is the bare name.
	Controller string `mapstructure:"controller" yaml:"controller"`
	// ControllerArgs is the optional ctorArgs string passed to that
	// ControllerFactory.
	ControllerArgs string `mapstructure:"controller_args" yaml:"controller_args"`
	// LogLevel is one of boxtinlog's level names ("debug", "info",
	// "warn", "error").
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultConfig is used whenever no config file is found and no overriding
// environment variables are set.
func DefaultConfig() *Config {
	return &Config{
		Controller: "default",
		LogLevel:   "info",
	}
}

// Load starts from DefaultConfig, overlays the config file at configPath
// (or in the default search location if empty) when one exists, and
// overlays BOXTIN_* environment variables on top of both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	for _, key := range []string{"policy_file", "controller", "controller_args", "log_level"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind boxtin config key %s: %w", key, err)
		}
	}

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal boxtin config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML form, creating path's directory if
// needed.
func SaveConfig(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal boxtin config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper wires environment-variable and config-file discovery: BOXTIN_*
// variables (e.g. BOXTIN_LOG_LEVEL) always take precedence over the file.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BOXTIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// ParseLogLevel maps a config file's log_level string onto boxtinlog's
// Level, defaulting to INFO for an empty or unrecognized value.
func ParseLogLevel(s string) boxtinlog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return boxtinlog.DEBUG
	case "warn", "warning":
		return boxtinlog.WARN
	case "error":
		return boxtinlog.ERROR
	default:
		return boxtinlog.INFO
	}
}

func defaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "boxtin")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".boxtin"
	}
	return filepath.Join(home, ".config", "boxtin")
}
