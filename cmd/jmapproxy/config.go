package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"jmapproxy/internal/common/logger"
	"jmapproxy/internal/common/validation"
	"jmapproxy/internal/common/version"
)

// Config holds the command line settings of jmapproxy. Credentials and
// addresses live in the configuration file.
type Config struct {
	// Configuration file
	ConfigPath string

	// Logging
	VerboseMode bool
	LogLevel    string

	// Serving
	EnableMetrics  bool
	RateLimit      float64
	RateBurst      int
	TrustedProxies []string

	// Audit log
	AuditLog    string
	AuditFormat string

	// Startup checks
	CheckIMAP bool
	DryRun    bool

	// Other
	ShowVersion bool
}

// NewConfig creates a new Config with sensible default values.
func NewConfig() *Config {
	return &Config{
		LogLevel:    "info",
		AuditFormat: "csv",
		RateBurst:   5,
	}
}

// parseAndConfigureFlags parses args and fills in unset flags from the
// environment through getenv.
func parseAndConfigureFlags(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	config := NewConfig()
	var trustedProxies string

	fs := flag.NewFlagSet("jmapproxy", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&config.ConfigPath, "config", "", "Path to the configuration file (default: <user config dir>/jmap-proxy/config.json) (env: JMAPPROXYCONFIG)")
	fs.BoolVar(&config.VerboseMode, "verbose", false, "Enable verbose output (env: JMAPPROXYVERBOSE)")
	fs.StringVar(&config.LogLevel, "loglevel", "info", "Log level: debug, info, warn, error (env: JMAPPROXYLOGLEVEL)")
	fs.BoolVar(&config.EnableMetrics, "metrics", false, "Expose Prometheus metrics on /metrics (env: JMAPPROXYMETRICS)")
	fs.Float64Var(&config.RateLimit, "ratelimit", 0, "Maximum session requests per second, 0 disables (env: JMAPPROXYRATELIMIT)")
	fs.IntVar(&config.RateBurst, "rateburst", 5, "Burst size for -ratelimit (env: JMAPPROXYRATEBURST)")
	fs.StringVar(&config.AuditLog, "auditlog", "", "Audit log file, \"auto\" for the temp directory, empty disables (env: JMAPPROXYAUDITLOG)")
	fs.StringVar(&config.AuditFormat, "auditformat", "csv", "Audit log format: csv, json (env: JMAPPROXYAUDITFORMAT)")
	fs.StringVar(&trustedProxies, "trustedproxies", "", "Comma-separated IPs or CIDRs allowed to set X-Forwarded-For (env: JMAPPROXYTRUSTEDPROXIES)")
	fs.BoolVar(&config.CheckIMAP, "checkimap", false, "Log in to the IMAP server before serving (env: JMAPPROXYCHECKIMAP)")
	fs.BoolVar(&config.DryRun, "dryrun", false, "Print the session summary and exit without serving")
	fs.BoolVar(&config.ShowVersion, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(output, "jmapproxy - JMAP session gateway - Version %s\n\n", version.Get())
		fmt.Fprintf(output, "Serves the JMAP session resource for one IMAP mailbox.\n\n")
		fmt.Fprintf(output, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(output, "\nEnvironment variables:\n")
		fmt.Fprintf(output, "  JMAPPROXYCONFIG          Configuration file\n")
		fmt.Fprintf(output, "  JMAPPROXYVERBOSE         Verbose output (true/false)\n")
		fmt.Fprintf(output, "  JMAPPROXYLOGLEVEL        Log level\n")
		fmt.Fprintf(output, "  JMAPPROXYMETRICS         Expose metrics (true/false)\n")
		fmt.Fprintf(output, "  JMAPPROXYRATELIMIT       Requests per second\n")
		fmt.Fprintf(output, "  JMAPPROXYRATEBURST       Rate limit burst\n")
		fmt.Fprintf(output, "  JMAPPROXYAUDITLOG        Audit log file\n")
		fmt.Fprintf(output, "  JMAPPROXYAUDITFORMAT     Audit log format\n")
		fmt.Fprintf(output, "  JMAPPROXYTRUSTEDPROXIES  Trusted proxies\n")
		fmt.Fprintf(output, "  JMAPPROXYCHECKIMAP       Check IMAP login at startup (true/false)\n")
		fmt.Fprintf(output, "\nExamples:\n")
		fmt.Fprintf(output, "  jmapproxy\n")
		fmt.Fprintf(output, "  jmapproxy -config ./config.json -checkimap -metrics\n")
		fmt.Fprintf(output, "  jmapproxy -config ./config.json -dryrun\n")
		fmt.Fprintf(output, "  jmapproxy -trustedproxies 10.0.0.0/8 -ratelimit 5 -auditlog auto\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Track which flags were explicitly set via command line
	providedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		providedFlags[f.Name] = true
	})

	if !providedFlags["config"] {
		if env := getenv("JMAPPROXYCONFIG"); env != "" {
			config.ConfigPath = env
		}
	}
	if !providedFlags["verbose"] {
		if env := getenv("JMAPPROXYVERBOSE"); env != "" {
			config.VerboseMode = parseBool(env)
		}
	}
	if !providedFlags["loglevel"] {
		if env := getenv("JMAPPROXYLOGLEVEL"); env != "" {
			config.LogLevel = env
		}
	}
	if !providedFlags["metrics"] {
		if env := getenv("JMAPPROXYMETRICS"); env != "" {
			config.EnableMetrics = parseBool(env)
		}
	}
	if !providedFlags["ratelimit"] {
		if env := getenv("JMAPPROXYRATELIMIT"); env != "" {
			if rps, err := strconv.ParseFloat(env, 64); err == nil {
				config.RateLimit = rps
			}
		}
	}
	if !providedFlags["rateburst"] {
		if env := getenv("JMAPPROXYRATEBURST"); env != "" {
			if burst, err := strconv.Atoi(env); err == nil {
				config.RateBurst = burst
			}
		}
	}
	if !providedFlags["auditlog"] {
		if env := getenv("JMAPPROXYAUDITLOG"); env != "" {
			config.AuditLog = env
		}
	}
	if !providedFlags["auditformat"] {
		if env := getenv("JMAPPROXYAUDITFORMAT"); env != "" {
			config.AuditFormat = env
		}
	}
	if !providedFlags["trustedproxies"] {
		if env := getenv("JMAPPROXYTRUSTEDPROXIES"); env != "" {
			trustedProxies = env
		}
	}
	if !providedFlags["checkimap"] {
		if env := getenv("JMAPPROXYCHECKIMAP"); env != "" {
			config.CheckIMAP = parseBool(env)
		}
	}

	config.TrustedProxies = splitList(trustedProxies)
	return config, nil
}

// validateConfiguration validates and normalizes the configuration.
func validateConfiguration(config *Config) error {
	config.LogLevel = strings.ToLower(config.LogLevel)
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", config.LogLevel)
	}

	format, err := logger.ParseLogFormat(config.AuditFormat)
	if err != nil {
		return err
	}
	config.AuditFormat = string(format)

	if config.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %v (must be >= 0)", config.RateLimit)
	}
	if config.RateLimit > 0 && config.RateBurst < 1 {
		return fmt.Errorf("invalid rate burst: %d (must be >= 1)", config.RateBurst)
	}

	for _, p := range config.TrustedProxies {
		if err := validation.ValidateTrustedProxy(p); err != nil {
			return fmt.Errorf("invalid trusted proxy: %w", err)
		}
	}

	return nil
}

// auditLogPath resolves the -auditlog value. An empty result disables the
// audit log.
func auditLogPath(config *Config) string {
	if strings.EqualFold(config.AuditLog, "auto") {
		return logger.DefaultPath("jmapproxy", "session", logger.LogFormat(config.AuditFormat))
	}
	return config.AuditLog
}

func parseBool(s string) bool {
	return strings.EqualFold(s, "true") || s == "1"
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
