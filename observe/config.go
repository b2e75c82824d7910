package observe

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvServiceName    = "OTEL_SERVICE_NAME"
	EnvEnvironment    = "OTEL_DEPLOYMENT_ENVIRONMENT"
	EnvCaptureContent = "OTEL_GENAI_CAPTURE_CONTENT"
	EnvPricingURL     = "OTEL_GENAI_PRICING_URL"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig reads a YAML config file, expands ${VAR} references and applies
// environment overrides. The result is validated.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigFile, err)
	}
	return ParseConfig(raw)
}

// ParseConfig parses YAML config bytes the same way LoadConfig does.
func ParseConfig(raw []byte) (Config, error) {
	expanded, err := expandEnvStrict(string(raw))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigFile, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigFile, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvServiceName); ok && v != "" {
		cfg.ServiceName = v
	}
	if v, ok := os.LookupEnv(EnvEnvironment); ok && v != "" {
		cfg.Environment = v
	}
	if v, ok := os.LookupEnv(EnvCaptureContent); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfigFile, EnvCaptureContent, err)
		}
		cfg.CaptureContent = b
	}
	if v, ok := os.LookupEnv(EnvPricingURL); ok && v != "" {
		cfg.Pricing.URL = v
	}
	return nil
}

// expandEnvStrict expands $VAR and ${VAR}. A ${VAR} that is not set is an
// error; $$ emits a literal $.
func expandEnvStrict(s string) (string, error) {
	const dollarSentinel = "\x00OBSERVE_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	missing := make(map[string]struct{})
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(match[1]); !ok {
			missing[match[1]] = struct{}{}
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("missing required environment variables: %s", strings.Join(keys, ", "))
	}

	s = os.ExpandEnv(s)
	return strings.ReplaceAll(s, dollarSentinel, "$"), nil
}
