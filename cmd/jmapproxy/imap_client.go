package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"jmapproxy/internal/common/logger"
	"jmapproxy/internal/common/retry"
	"jmapproxy/internal/common/security"
	"jmapproxy/internal/config"
	imapprotocol "jmapproxy/internal/imap/protocol"
	imaptls "jmapproxy/internal/imap/tls"
)

// IMAPProbe checks that the configured mailbox accepts the configured
// credentials.
type IMAPProbe struct {
	cfg        config.IMAPConfig
	log        *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

// NewIMAPProbe creates a probe for cfg.
func NewIMAPProbe(cfg config.IMAPConfig, log *slog.Logger) *IMAPProbe {
	return &IMAPProbe{
		cfg:        cfg,
		log:        log,
		maxRetries: 3,
		baseDelay:  time.Second,
		timeout:    30 * time.Second,
	}
}

// Check connects, logs in and logs out. Transient network failures are
// retried; the final error wraps config.ErrConfiguration.
func (p *IMAPProbe) Check(ctx context.Context) (*imapprotocol.Capabilities, error) {
	var caps *imapprotocol.Capabilities
	err := retry.RetryWithBackoff(ctx, p.log, p.maxRetries, p.baseDelay, func() error {
		c, err := p.checkOnce(ctx)
		if err != nil {
			return err
		}
		caps = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: IMAP login to %s failed: %w", config.ErrConfiguration, p.cfg.Address(), err)
	}
	return caps, nil
}

func (p *IMAPProbe) checkOnce(ctx context.Context) (*imapprotocol.Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var tlsState *tls.ConnectionState
	client, err := p.connect(func(cs tls.ConnectionState) {
		tlsState = &cs
	})
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = client.Close() }()

	if tlsState != nil {
		p.logTLS(imaptls.Describe(*tlsState))
	}

	// imapclient commands do not take a context; closing the connection
	// unblocks them.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	caps := convertCaps(client.Caps())
	logger.LogDebug(p.log, "IMAP capabilities", "capabilities", caps.String())

	mechanism := caps.SelectAuthMechanism()
	logger.LogDebug(p.log, "Authenticating to IMAP server",
		"mechanism", mechanism,
		"username", security.MaskUsername(p.cfg.Username))

	switch mechanism {
	case imapprotocol.AuthPlain:
		saslClient := sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)
		if err := client.Authenticate(saslClient); err != nil {
			return nil, fmt.Errorf("PLAIN authentication failed: %w", err)
		}
	case imapprotocol.AuthLogin:
		if err := client.Login(p.cfg.Username, p.cfg.Password).Wait(); err != nil {
			return nil, fmt.Errorf("LOGIN failed: %w", err)
		}
	default:
		return nil, errors.New("server offers no usable login mechanism")
	}

	if err := client.Logout().Wait(); err != nil {
		logger.LogDebug(p.log, "IMAP logout failed", "error", err)
	}
	return caps, nil
}

// connect dials the server. onTLS receives the negotiated session after
// certificate verification succeeded.
func (p *IMAPProbe) connect(onTLS func(tls.ConnectionState)) (*imapclient.Client, error) {
	options := &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName: p.cfg.Host,
			MinVersion: tls.VersionTLS12,
			VerifyConnection: func(cs tls.ConnectionState) error {
				onTLS(cs)
				return nil
			},
		},
	}

	address := p.cfg.Address()
	if p.cfg.TLS {
		return imapclient.DialTLS(address, options)
	}
	return imapclient.DialInsecure(address, options)
}

func (p *IMAPProbe) logTLS(info imaptls.SessionInfo) {
	logger.LogDebug(p.log, "IMAP TLS session",
		"version", info.Version,
		"cipher", info.CipherSuite,
		"subject", info.Subject,
		"issuer", info.Issuer,
		"not_after", info.NotAfter)
	for _, warning := range info.Warnings(time.Now()) {
		logger.LogWarn(p.log, "IMAP TLS warning", "warning", warning)
	}
}

// convertCaps converts go-imap capabilities to protocol.Capabilities.
func convertCaps(caps imap.CapSet) *imapprotocol.Capabilities {
	capsList := make([]string, 0, len(caps))
	for c := range caps {
		capsList = append(capsList, string(c))
	}
	return imapprotocol.NewCapabilities(capsList)
}
