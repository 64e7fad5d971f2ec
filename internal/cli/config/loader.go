package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names searched when none is given explicitly.
const (
	ConfigFileName    = "config-user.yml"
	ConfigFileNameAlt = "config-user.yaml"
)

// envPrefix namespaces environment variable overrides, e.g.
// ESMVALTOOL_OUTPUT_DIR -> output_dir.
const envPrefix = "ESMVALTOOL_"

var configFileUsed string

// findConfigFile locates the config file. Priority: explicit path,
// then the working directory, then ~/.esmvaltool/. An explicit path
// that does not exist resolves to nothing so Load reports it.
func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
			candidate := filepath.Join(home, ".esmvaltool", name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// Load reads the user configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"output_dir":         DefaultOutputDir,
		"max_parallel_tasks": DefaultMaxParallelTasks,
		"log_level":          DefaultLogLevel,
		"output":             DefaultOutputFormat,
		"skip_nonexistent":   false,
		"batch.backend":      DefaultBatchBackend,
		"batch.environment":  DefaultBatchEnvironment,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	} else if cfgFile != "" {
		return nil, fmt.Errorf("config file %s not found", cfgFile)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			// --config-file selects the file itself, it is not a key.
			if key == "config_file" {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// rootpath entries may be a single path or a list; normalize by
	// hand rather than through struct decoding.
	rootpath, err := normalizeRootpath(k.Get("rootpath"))
	if err != nil {
		return nil, err
	}
	cfg.Rootpath = rootpath

	resolvePaths(&cfg, configFileUsed)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigFileUsed returns the config file the last Load read, if
// any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// normalizeRootpath accepts `rootpath: {CMIP5: /a}` as well as
// `rootpath: {CMIP5: [/a, /b]}`.
func normalizeRootpath(raw any) (map[string][]string, error) {
	if raw == nil {
		return nil, nil
	}
	entries, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("rootpath must be a mapping of project to path(s)")
	}
	out := make(map[string][]string, len(entries))
	for project, v := range entries {
		switch paths := v.(type) {
		case string:
			out[project] = []string{expandHome(paths)}
		case []any:
			for _, p := range paths {
				s, isString := p.(string)
				if !isString {
					return nil, fmt.Errorf("rootpath for %s: expected string, got %T", project, p)
				}
				out[project] = append(out[project], expandHome(s))
			}
		default:
			return nil, fmt.Errorf("rootpath for %s: expected string or list, got %T", project, v)
		}
	}
	return out, nil
}

// expandHome resolves a leading ~ against the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// resolvePaths makes relative directories absolute against the config
// file's directory so runs behave the same from any working
// directory.
func resolvePaths(cfg *Config, configFile string) {
	base := ""
	if configFile != "" {
		if abs, err := filepath.Abs(configFile); err == nil {
			base = filepath.Dir(abs)
		}
	}
	if base == "" {
		base, _ = os.Getwd()
	}

	cfg.OutputDir = resolveAgainst(expandHome(cfg.OutputDir), base)
	cfg.AuxiliaryDataDir = resolveAgainst(expandHome(cfg.AuxiliaryDataDir), base)
	for i, dir := range cfg.DiagScripts {
		cfg.DiagScripts[i] = resolveAgainst(expandHome(dir), base)
	}
}

func resolveAgainst(path, base string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
