package pgwire

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"regexp"
)

// HostKind distinguishes a TCP hostname from a Unix-domain socket path.
type HostKind string

const (
	HostTCP    HostKind = "tcp"
	HostSocket HostKind = "socket"
)

// TLSSettings mirrors spec.md §3's tls sub-record.
type TLSSettings struct {
	Enabled        bool
	Enforce        bool
	CACertificates [][]byte // ordered PEM blocks
}

// Pool returns an *x509.CertPool built from CACertificates, or nil (use
// the system pool) when none were supplied.
func (t TLSSettings) Pool() (*x509.CertPool, error) {
	if len(t.CACertificates) == 0 {
		return nil, nil
	}
	pool := x509.NewCertPool()
	for i, pem := range t.CACertificates {
		if !pool.AppendCertsFromPEM(pem) {
			return nil, &ConfigError{Reason: fmt.Sprintf("CA certificate %d could not be parsed as PEM", i)}
		}
	}
	return pool, nil
}

func (t TLSSettings) tlsConfig(serverName string) (*tls.Config, error) {
	pool, err := t.Pool()
	if err != nil {
		return nil, err
	}
	return &tls.Config{RootCAs: pool, ServerName: serverName}, nil
}

// ConnectionConfig is immutable after construction (spec.md §3). Build one
// with NewConnectionConfig, ParseConnectionString, or ConfigFromEnv.
type ConnectionConfig struct {
	Database        string
	User            string
	Password        string
	Host            string
	HostKind        HostKind
	Port            int
	ApplicationName string
	Options         map[string]string
	TLS             TLSSettings

	// Logger receives structured diagnostics for this connection and any
	// pool built from it. Defaults to slog.Default() when nil.
	Logger *slog.Logger
}

var optionKeyRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewConnectionConfig validates and returns a copy of cfg with defaults
// applied (application_name defaults to "pgwireclient" when empty).
func NewConnectionConfig(cfg ConnectionConfig) (*ConnectionConfig, error) {
	out := cfg
	if out.Options == nil {
		out.Options = map[string]string{}
	} else {
		copied := make(map[string]string, len(out.Options))
		for k, v := range out.Options {
			copied[k] = v
		}
		out.Options = copied
	}
	if out.ApplicationName == "" {
		out.ApplicationName = "pgwireclient"
	}
	if out.HostKind == "" {
		out.HostKind = HostTCP
	}
	if err := out.validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ConnectionConfig) validate() error {
	if c.HostKind == HostSocket && c.TLS.Enabled {
		return &ConfigError{Reason: "host_kind=socket requires tls.enabled=false"}
	}
	if c.TLS.Enforce && !c.TLS.Enabled {
		return &ConfigError{Reason: "tls.enforce requires tls.enabled"}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Reason: fmt.Sprintf("port %d out of range [0,65535]", c.Port)}
	}
	var invalid []string
	for k := range c.Options {
		if !optionKeyRE.MatchString(k) {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		return &ConfigError{Reason: fmt.Sprintf("invalid option key(s): %v (must match %s)", invalid, optionKeyRE.String())}
	}
	if c.Database == "" {
		return &ConfigError{Reason: "database is required"}
	}
	if c.User == "" {
		return &ConfigError{Reason: "user is required"}
	}
	if c.Host == "" {
		return &ConfigError{Reason: "host is required"}
	}
	return nil
}

func (c *ConnectionConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
