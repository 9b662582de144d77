// Package tls serves the API over HTTPS with certificates managed by CertMagic.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"

	"github.com/jobrunner/spatialquery/internal/config"
)

// ErrNoDomains is returned when TLS is enabled without any domain.
var ErrNoDomains = errors.New("tls: no domains configured")

// ErrNoEmail is returned when TLS is enabled without an ACME account email.
var ErrNoEmail = errors.New("tls: no ACME email configured")

// Server serves a handler over HTTPS using ACME DNS-01 certificates.
type Server struct {
	magic   *certmagic.Config
	domains []string
	server  *http.Server
	logger  *slog.Logger
}

// NewServer prepares a CertMagic config solving DNS-01 challenges through
// Azure DNS. Certificates are obtained in ListenAndServe.
func NewServer(cfg config.TLSConfig, srv config.ServerConfig, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	var magic *certmagic.Config
	cache := certmagic.NewCache(certmagic.CacheOptions{
		GetConfigForCert: func(certmagic.Certificate) (*certmagic.Config, error) {
			return magic, nil
		},
	})

	magic = certmagic.New(cache, certmagic.Config{
		Storage: storageFor(cfg),
	})
	magic.Issuers = []certmagic.Issuer{
		certmagic.NewACMEIssuer(magic, newIssuer(cfg)),
	}

	tlsConfig := magic.TLSConfig()
	tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, tlsConfig.NextProtos...)

	return &Server{
		magic:   magic,
		domains: cfg.Domains,
		logger:  logger,
		server: &http.Server{
			Addr:              srv.Address(),
			Handler:           handler,
			TLSConfig:         tlsConfig,
			ReadTimeout:       srv.ReadTimeout,
			WriteTimeout:      srv.WriteTimeout,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func validate(cfg config.TLSConfig) error {
	if len(cfg.Domains) == 0 {
		return ErrNoDomains
	}
	if cfg.Email == "" {
		return ErrNoEmail
	}
	return nil
}

func storageFor(cfg config.TLSConfig) certmagic.Storage {
	if cfg.CacheDir == "" {
		return certmagic.Default.Storage
	}
	return &certmagic.FileStorage{Path: cfg.CacheDir}
}

func newIssuer(cfg config.TLSConfig) certmagic.ACMEIssuer {
	issuer := certmagic.ACMEIssuer{
		CA:     certmagic.LetsEncryptProductionCA,
		Email:  cfg.Email,
		Agreed: true,
		DNS01Solver: &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{
				DNSProvider: &azure.Provider{
					SubscriptionId:    cfg.DNS.SubscriptionID,
					ResourceGroupName: cfg.DNS.ResourceGroupName,
					ClientId:          cfg.DNS.ClientID, // empty selects the system assigned identity
				},
			},
		},
	}
	if cfg.Staging {
		issuer.CA = certmagic.LetsEncryptStagingCA
	}
	return issuer
}

// ListenAndServe obtains certificates for the configured domains and then
// serves HTTPS until Shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.logger.Info("obtaining certificates", "domains", s.domains)
	if err := s.magic.ManageSync(ctx, s.domains); err != nil {
		return fmt.Errorf("managing certificates: %w", err)
	}

	s.logger.Info("starting HTTPS server", "address", s.server.Addr, "domains", s.domains)
	return s.server.ListenAndServeTLS("", "")
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// TLSConfig returns the TLS configuration served to clients.
func (s *Server) TLSConfig() *tls.Config {
	return s.server.TLSConfig
}
