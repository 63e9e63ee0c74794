package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"jmapproxy/internal/common/logger"
	"jmapproxy/internal/common/ratelimit"
	"jmapproxy/internal/common/security"
	"jmapproxy/internal/common/version"
	"jmapproxy/internal/config"
	"jmapproxy/internal/jmap/protocol"
	"jmapproxy/internal/jmap/server"
)

func main() {
	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Parse configuration
	cliConfig, err := parseAndConfigureFlags(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// Handle version flag
	if cliConfig.ShowVersion {
		fmt.Printf("jmapproxy version %s\n", version.Get())
		os.Exit(0)
	}

	if err := validateConfiguration(cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	slogLogger := logger.SetupLogger(cliConfig.VerboseMode, cliConfig.LogLevel)

	if err := run(ctx, cliConfig, slogLogger, protocol.UUIDGenerator{}, os.Stdout); err != nil {
		logger.LogError(slogLogger, "jmapproxy failed", "error", err)
		os.Exit(1)
	}
}

// run loads the configuration file, optionally probes the mailbox and
// serves the session until ctx is cancelled. With -dryrun the session
// summary is written to out instead.
func run(ctx context.Context, cliConfig *Config, slogLogger *slog.Logger, ids protocol.IdentityGenerator, out io.Writer) error {
	srv, closeAudit, err := setup(ctx, cliConfig, slogLogger, ids)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeAudit.Close(); err != nil {
			logger.LogWarn(slogLogger, "Failed to close audit log", "error", err)
		}
	}()

	if cliConfig.DryRun {
		session, err := srv.Session()
		if err != nil {
			return err
		}
		fmt.Fprint(out, session.Summary())
		return nil
	}

	return srv.Run(ctx)
}

// setup builds the server from the CLI settings and the configuration
// file. The returned closer releases the audit log.
func setup(ctx context.Context, cliConfig *Config, slogLogger *slog.Logger, ids protocol.IdentityGenerator) (*server.Server, io.Closer, error) {
	path := cliConfig.ConfigPath
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		path = defaultPath
	}

	logger.LogDebug(slogLogger, "Loading configuration", "path", path)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if cliConfig.CheckIMAP {
		logger.LogInfo(slogLogger, "Checking IMAP login",
			"server", cfg.IMAP.Address(),
			"tls", cfg.IMAP.TLS,
			"username", security.MaskUsername(cfg.IMAP.Username))
		caps, err := NewIMAPProbe(cfg.IMAP, slogLogger).Check(ctx)
		if err != nil {
			return nil, nil, err
		}
		logger.LogInfo(slogLogger, "IMAP login succeeded", "capabilities", caps.String())
	}

	var audit logger.Logger
	closer := io.Closer(nopCloser{})
	if auditPath := auditLogPath(cliConfig); auditPath != "" {
		audit, err = logger.NewLogger(logger.LogFormat(cliConfig.AuditFormat), auditPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		closer = audit
		logger.LogInfo(slogLogger, "Writing audit log", "path", auditPath, "format", cliConfig.AuditFormat)
	}

	var limiter *ratelimit.Limiter
	if cliConfig.RateLimit > 0 {
		limiter = ratelimit.NewWithBurst(cliConfig.RateLimit, cliConfig.RateBurst)
	}

	accountId := ids.NewAccountId()
	address := cfg.BindAddress()

	srv, err := server.New(server.Options{
		Account:        protocol.NewAccount(cfg.IMAP.Email),
		AccountId:      accountId,
		Username:       cfg.IMAP.Email,
		Address:        address,
		Gate:           server.NewCredentialGate(cfg.JMAP.Username, cfg.JMAP.Password),
		Logger:         slogLogger,
		Limiter:        limiter,
		Audit:          audit,
		EnableMetrics:  cliConfig.EnableMetrics,
		TrustedProxies: cliConfig.TrustedProxies,
	})
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	if session, err := srv.Session(); err == nil {
		logger.LogInfo(slogLogger, "Session ready",
			"account_id", string(accountId),
			"username", security.MaskEmail(session.Username),
			"api_url", session.APIURL,
			"state", session.State)
	}

	return srv, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
