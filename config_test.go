package pgwire

import "testing"

func validConfig() ConnectionConfig {
	return ConnectionConfig{
		Database: "app",
		User:     "app_user",
		Host:     "localhost",
		Port:     5432,
	}
}

func TestNewConnectionConfigDefaults(t *testing.T) {
	cfg, err := NewConnectionConfig(validConfig())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ApplicationName != "pgwireclient" {
		t.Errorf("ApplicationName = %q, want default", cfg.ApplicationName)
	}
	if cfg.HostKind != HostTCP {
		t.Errorf("HostKind = %q, want %q", cfg.HostKind, HostTCP)
	}
	if cfg.Options == nil {
		t.Error("Options should default to an empty (non-nil) map")
	}
}

func TestNewConnectionConfigCopiesOptionsMap(t *testing.T) {
	in := validConfig()
	in.Options = map[string]string{"search_path": "public"}
	cfg, err := NewConnectionConfig(in)
	if err != nil {
		t.Fatal(err)
	}
	in.Options["search_path"] = "mutated"
	if cfg.Options["search_path"] != "public" {
		t.Error("NewConnectionConfig should defensively copy the Options map")
	}
}

func TestNewConnectionConfigRequiresDatabaseUserHost(t *testing.T) {
	cases := []ConnectionConfig{
		{User: "u", Host: "h"},
		{Database: "d", Host: "h"},
		{Database: "d", User: "u"},
	}
	for _, c := range cases {
		if _, err := NewConnectionConfig(c); err == nil {
			t.Errorf("expected an error for incomplete config %+v", c)
		}
	}
}

func TestNewConnectionConfigRejectsSocketWithTLS(t *testing.T) {
	cfg := validConfig()
	cfg.HostKind = HostSocket
	cfg.TLS.Enabled = true
	if _, err := NewConnectionConfig(cfg); err == nil {
		t.Error("expected an error combining host_kind=socket with tls.enabled")
	}
}

func TestNewConnectionConfigRejectsEnforceWithoutEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.TLS.Enforce = true
	if _, err := NewConnectionConfig(cfg); err == nil {
		t.Error("expected an error combining tls.enforce with tls.enabled=false")
	}
}

func TestNewConnectionConfigRejectsOutOfRangePort(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 70000
	if _, err := NewConnectionConfig(cfg); err == nil {
		t.Error("expected an error for an out-of-range port")
	}
}

func TestNewConnectionConfigRejectsInvalidOptionKey(t *testing.T) {
	cfg := validConfig()
	cfg.Options = map[string]string{"1bad": "x"}
	if _, err := NewConnectionConfig(cfg); err == nil {
		t.Error("expected an error for an invalid option key")
	}
}

func TestTLSSettingsPoolEmpty(t *testing.T) {
	var tls TLSSettings
	pool, err := tls.Pool()
	if err != nil {
		t.Fatal(err)
	}
	if pool != nil {
		t.Error("expected a nil pool when no CA certificates are set")
	}
}

func TestTLSSettingsPoolRejectsInvalidPEM(t *testing.T) {
	tls := TLSSettings{CACertificates: [][]byte{[]byte("not a pem")}}
	if _, err := tls.Pool(); err == nil {
		t.Error("expected an error for an unparseable CA certificate")
	}
}

func TestConfigLoggerDefaultsWhenNil(t *testing.T) {
	cfg, err := NewConnectionConfig(validConfig())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.logger() == nil {
		t.Error("logger() should never return nil")
	}
}
