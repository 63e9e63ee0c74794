// Package config loads the gateway configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"jmapproxy/internal/common/validation"
)

// ErrConfiguration marks every error returned by Load and Validate.
var ErrConfiguration = errors.New("configuration error")

// Defaults used when the jmap section leaves host or port unset.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8080
)

// Default location relative to os.UserConfigDir().
const (
	dirName  = "jmap-proxy"
	fileName = "config.json"
)

// IMAPConfig describes the mailbox exposed as the JMAP account.
type IMAPConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	TLS      bool   `json:"tls"`
}

// Address returns host:port of the IMAP server.
func (c IMAPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// JMAPConfig holds the service credentials and the address the gateway is
// reachable on.
type JMAPConfig struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Host     *string `json:"host,omitempty"`
	Port     *int    `json:"port,omitempty"`
}

// Config is the immutable snapshot loaded at startup.
type Config struct {
	IMAP IMAPConfig `json:"imap"`
	JMAP JMAPConfig `json:"jmap"`
}

// DefaultPath returns <user config dir>/jmap-proxy/config.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: cannot locate user config directory: %v", ErrConfiguration, err)
	}
	return filepath.Join(dir, dirName, fileName), nil
}

// Load reads, decodes and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document. Unknown fields are
// rejected so typos surface at startup.
func Parse(data []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: malformed configuration: %v", ErrConfiguration, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: malformed configuration: trailing data", ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field the gateway depends on.
func (c *Config) Validate() error {
	var problems []string
	check := func(field string, err error) {
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", field, err))
		}
	}

	check("imap.email", validation.ValidateEmail(c.IMAP.Email))
	check("imap.host", validation.ValidateHostname(c.IMAP.Host))
	check("imap.port", validation.ValidatePort(c.IMAP.Port))
	if c.IMAP.Username == "" {
		problems = append(problems, "imap.username: required")
	}
	if c.IMAP.Password == "" {
		problems = append(problems, "imap.password: required")
	}

	if c.JMAP.Username == "" {
		problems = append(problems, "jmap.username: required")
	}
	if c.JMAP.Password == "" {
		problems = append(problems, "jmap.password: required")
	}
	if c.JMAP.Host != nil {
		check("jmap.host", validation.ValidateHostname(*c.JMAP.Host))
	}
	if c.JMAP.Port != nil {
		check("jmap.port", validation.ValidatePort(*c.JMAP.Port))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// HostOrDefault returns the configured JMAP host or DefaultHost.
func (c JMAPConfig) HostOrDefault() string {
	if c.Host == nil {
		return DefaultHost
	}
	return strings.TrimSpace(*c.Host)
}

// PortOrDefault returns the configured JMAP port or DefaultPort.
func (c JMAPConfig) PortOrDefault() int {
	if c.Port == nil {
		return DefaultPort
	}
	return *c.Port
}

// BindAddress returns the host:port the gateway listens on and advertises
// in session URLs.
func (c *Config) BindAddress() string {
	return net.JoinHostPort(c.JMAP.HostOrDefault(), strconv.Itoa(c.JMAP.PortOrDefault()))
}
