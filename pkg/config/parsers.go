package config

import (
	"flag"
	"net"
	"os"
	"strconv"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged view of flags, env and config file
// that the rest of the process consumes.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ResolveConfigPath picks the config file path: an explicit flag wins,
// otherwise the BRANCHCHAT_CONFIG env var, otherwise the flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("BRANCHCHAT_CONFIG"); v != "" {
		return v
	}
	return flagVal
}

// LoadEnvOverrides applies environment overrides onto the provided cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	if v := os.Getenv("BRANCHCHAT_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("BRANCHCHAT_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("BRANCHCHAT_UPSTREAM_URL"); v != "" {
		envUsed = true
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("BRANCHCHAT_MODEL"); v != "" {
		envUsed = true
		cfg.Upstream.Model = v
	}
	if v := os.Getenv("BRANCHCHAT_REASONING_EFFORT"); v != "" {
		envUsed = true
		cfg.Upstream.ReasoningEffort = v
	}
	if v := os.Getenv("BRANCHCHAT_UPSTREAM_TIMEOUT_SECONDS"); v != "" {
		envUsed = true
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("BRANCHCHAT_COOLDOWN_MINUTES"); v != "" {
		envUsed = true
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.CooldownMinutes = n
		}
	}
	if v := os.Getenv("BRANCHCHAT_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	return envUsed
}

// LoadEffective loads the config file (if present), applies env overrides
// and returns the merged result. Missing config files are not fatal; env
// and flag values still apply on top of defaults.
func LoadEffective(path string) (EffectiveConfigResult, error) {
	cfg, err := Load(path)
	source := "config"
	if err != nil {
		if !os.IsNotExist(err) {
			return EffectiveConfigResult{}, err
		}
		cfg = &Config{}
		source = "flags"
	}
	if LoadEnvOverrides(cfg) {
		source = "env"
	}
	return EffectiveConfigResult{
		Config: cfg,
		Addr:   cfg.Addr(),
		DBPath: cfg.Storage.DBPath,
		Source: source,
	}, nil
}
