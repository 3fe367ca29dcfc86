package poe

import (
	"fmt"
	"os"
	"strings"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
	"github.com/spf13/viper"
)

// AccessKeyLength is the exact length Poe access keys must have (spec.md
// §6/§8): a resolved key of any other length fails fast rather than being
// accepted and failing authentication later.
const AccessKeyLength = 32

// ResolveAccessKey applies the access-key lookup order from spec.md §6:
// an explicitly supplied key wins, then POE_ACCESS_KEY, then the legacy
// apiKey argument, then POE_API_KEY. Returns InvalidParameter if nothing
// resolves, or if the resolved key is not exactly AccessKeyLength characters.
func ResolveAccessKey(accessKey, apiKey string) (string, error) {
	key, err := resolveAccessKey(accessKey, apiKey)
	if err != nil {
		return "", err
	}
	if len(key) != AccessKeyLength {
		return "", perrors.NewInvalidParameter(fmt.Sprintf(
			"invalid access key length: must be %d characters, got %d", AccessKeyLength, len(key)))
	}
	return key, nil
}

func resolveAccessKey(accessKey, apiKey string) (string, error) {
	if accessKey != "" {
		return accessKey, nil
	}
	if v := os.Getenv("POE_ACCESS_KEY"); v != "" {
		return v, nil
	}
	if apiKey != "" {
		return apiKey, nil
	}
	if v := os.Getenv("POE_API_KEY"); v != "" {
		return v, nil
	}
	return "", perrors.NewInvalidParameter("no access key supplied (checked direct argument, POE_ACCESS_KEY, legacy api_key, POE_API_KEY)")
}

// ServerConfig is the boot configuration for cmd/poeserver, loaded with
// viper's layered defaults → file → environment precedence, mirroring the
// teacher's internal/infrastructure/config/config.go Load().
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	ManifestPath string `mapstructure:"manifest_path"`
	PlatformURL  string `mapstructure:"platform_url"`
}

func setServerConfigDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("manifest_path", "bots.yaml")
	v.SetDefault("platform_url", "https://api.poe.com")
}

// LoadServerConfig loads ServerConfig from an optional config file plus
// environment variables prefixed POE_SERVER_, following the teacher's
// defaults-then-file-then-env layering.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	v := viper.New()
	setServerConfigDefaults(v)

	v.SetEnvPrefix("POE_SERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return ServerConfig{}, perrors.NewInvalidParameter("failed to read server config: " + err.Error())
			}
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, perrors.NewInvalidParameter("failed to parse server config: " + err.Error())
	}
	return cfg, nil
}
