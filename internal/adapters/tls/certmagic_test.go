package tls

import (
	"errors"
	"testing"

	"github.com/caddyserver/certmagic"

	"github.com/jobrunner/spatialquery/internal/config"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TLSConfig
		want error
	}{
		{"no domains", config.TLSConfig{Email: "ops@example.com"}, ErrNoDomains},
		{"no email", config.TLSConfig{Domains: []string{"query.example.com"}}, ErrNoEmail},
		{"complete", config.TLSConfig{Domains: []string{"query.example.com"}, Email: "ops@example.com"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewIssuer(t *testing.T) {
	cfg := config.TLSConfig{
		Email: "ops@example.com",
		DNS:   config.TLSDNSConfig{SubscriptionID: "sub", ResourceGroupName: "dns"},
	}

	issuer := newIssuer(cfg)
	if issuer.CA != certmagic.LetsEncryptProductionCA {
		t.Errorf("CA = %q, want production", issuer.CA)
	}
	if !issuer.Agreed || issuer.Email != cfg.Email {
		t.Errorf("issuer account = %q agreed=%v", issuer.Email, issuer.Agreed)
	}
	if issuer.DNS01Solver == nil {
		t.Fatal("DNS01Solver not set")
	}

	cfg.Staging = true
	if got := newIssuer(cfg).CA; got != certmagic.LetsEncryptStagingCA {
		t.Errorf("staging CA = %q", got)
	}
}

func TestStorageFor(t *testing.T) {
	dir := t.TempDir()
	fs, ok := storageFor(config.TLSConfig{CacheDir: dir}).(*certmagic.FileStorage)
	if !ok || fs.Path != dir {
		t.Errorf("storageFor() = %#v, want file storage at %s", fs, dir)
	}
}
