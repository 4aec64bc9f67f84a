// Package config loads the master daemon's external configuration
// collaborator (spec.md §6): bind addresses, the ban list, the log file
// path, the directory timeouts, and the signing key.
package config

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AddrSpec is a (host, port) bind address. An empty Host means
// "unspecified" — bind to 0.0.0.0.
type AddrSpec struct {
	Host string
	Port uint16
}

func (a AddrSpec) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Config is the fully-resolved set of values the master daemon needs at
// startup.
type Config struct {
	ServerAddress AddrSpec
	// QueryAddress is nil when verification (and hence all registration)
	// is disabled, per spec.md §6.
	QueryAddress *AddrSpec

	BlockAddresses []string

	LogFile string

	ServerTimeout       time.Duration
	MetadataRefreshTime time.Duration

	// SigningKey is nil when demo signing is disabled.
	SigningKey  []byte
	NonceDBPath string

	// StatusListenAddress is empty when the read-only status/metrics
	// service should not be started.
	StatusListenAddress string
}

// Load reads configuration from path (YAML or JSON, by extension),
// layers MASTERD_-prefixed environment variables on top, and decodes the
// result into a Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("server_timeout", "30s")
	v.SetDefault("metadata_refresh_time", "1h")
	v.SetDefault("nonce_db_path", ":memory:")
	v.SetDefault("block_addresses", []string{})

	v.SetEnvPrefix("MASTERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	serverAddr, err := parseAddrSpec(v.GetString("server_address"))
	if err != nil {
		return nil, fmt.Errorf("config: server_address: %w", err)
	}

	var queryAddr *AddrSpec
	if raw := v.GetString("query_address"); raw != "" {
		qa, err := parseAddrSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("config: query_address: %w", err)
		}
		queryAddr = &qa
	}

	serverTimeout, err := time.ParseDuration(v.GetString("server_timeout"))
	if err != nil {
		return nil, fmt.Errorf("config: server_timeout: %w", err)
	}
	metadataRefresh, err := time.ParseDuration(v.GetString("metadata_refresh_time"))
	if err != nil {
		return nil, fmt.Errorf("config: metadata_refresh_time: %w", err)
	}

	var signingKey []byte
	if raw := v.GetString("signing_key"); raw != "" {
		signingKey, err = base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("config: signing_key must be base64: %w", err)
		}
	}

	return &Config{
		ServerAddress:       serverAddr,
		QueryAddress:        queryAddr,
		BlockAddresses:      v.GetStringSlice("block_addresses"),
		LogFile:             v.GetString("log_file"),
		ServerTimeout:       serverTimeout,
		MetadataRefreshTime: metadataRefresh,
		SigningKey:          signingKey,
		NonceDBPath:         v.GetString("nonce_db_path"),
		StatusListenAddress: v.GetString("status_listen_address"),
	}, nil
}

// parseAddrSpec parses "host:port" or ":port" into an AddrSpec.
func parseAddrSpec(s string) (AddrSpec, error) {
	if s == "" {
		return AddrSpec{}, fmt.Errorf("empty address")
	}
	host, portStr, err := splitHostPort(s)
	if err != nil {
		return AddrSpec{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return AddrSpec{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return AddrSpec{Host: host, Port: uint16(port)}, nil
}

func splitHostPort(s string) (host, port string, err error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("missing ':port' in %q", s)
	}
	return s[:idx], s[idx+1:], nil
}
