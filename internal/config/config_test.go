package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "estatedesk",
				Password: "secret",
				Name:     "estatedesk",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=estatedesk password=secret dbname=estatedesk sslmode=require",
		},
		{
			name: "disable ssl mode",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "admin",
				Password: "pass",
				Name:     "mydb",
				SSLMode:  "disable",
			},
			want: "host=db.example.com port=5433 user=admin password=pass dbname=mydb sslmode=disable",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "",
				Name:     "dbname",
				SSLMode:  "prefer",
			},
			want: "host=localhost port=5432 user=user password= dbname=dbname sslmode=prefer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 8080}
	if got := cfg.GetAddress(); got != "0.0.0.0:8080" {
		t.Errorf("GetAddress() = %q, want 0.0.0.0:8080", got)
	}
}

// ---------------------------------------------------------------------------
// Load — defaults, file, env layering
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port default = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "estatedesk" {
		t.Errorf("database.name default = %q, want estatedesk", cfg.Database.Name)
	}
	if cfg.Database.MaxConnections != 25 {
		t.Errorf("database.max_connections default = %d, want 25", cfg.Database.MaxConnections)
	}
	if cfg.Redis.Enabled {
		t.Error("redis.enabled default = true, want false")
	}
	if cfg.Redis.SessionTTL != 8*time.Hour {
		t.Errorf("redis.session_ttl default = %v, want 8h", cfg.Redis.SessionTTL)
	}
	if !cfg.Audit.Enabled {
		t.Error("audit.enabled default = false, want true")
	}
	if cfg.Audit.RetentionDays != 365 {
		t.Errorf("audit.retention_days default = %d, want 365", cfg.Audit.RetentionDays)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
logging:
  level: debug
audit:
  retention_days: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server.port = %d, want 9999 from file", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug from file", cfg.Logging.Level)
	}
	if cfg.Audit.RetentionDays != 30 {
		t.Errorf("audit.retention_days = %d, want 30 from file", cfg.Audit.RetentionDays)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("ESD_DATABASE_HOST", "db.internal")
	t.Setenv("ESD_SERVER_PORT", "7777")

	path := writeConfig(t, `
server:
  port: 9999
database:
  host: file-host
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("database.host = %q, want env value db.internal", cfg.Database.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("server.port = %d, want env value 7777", cfg.Server.Port)
	}
}

func TestLoad_ExpandsPasswordEnvRef(t *testing.T) {
	t.Setenv("DB_SECRET", "s3cret")
	path := writeConfig(t, `
database:
  password: ${DB_SECRET}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("database.password = %q, want expanded s3cret", cfg.Database.Password)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, ""))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing db name", func(c *Config) { c.Database.Name = "" }, "database.name"},
		{"redis enabled without addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"tls without cert", func(c *Config) { c.Security.TLS.Enabled = true }, "cert_file"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging level"},
		{"shipper without url", func(c *Config) {
			c.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "webhook"}}
		}, "webhook.url"},
		{"unknown shipper type", func(c *Config) {
			c.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "syslog"}}
		}, "unknown type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_DisabledShipperSkipped(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Audit.Shippers = []AuditShipperConfig{{Enabled: false, Type: "carrier-pigeon"}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for disabled shipper", err)
	}
}

// ---------------------------------------------------------------------------
// Watcher
// ---------------------------------------------------------------------------

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "debug" {
			t.Errorf("reloaded logging.level = %q, want debug", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire after config write")
	}
}

func TestWatcher_InvalidReloadKeepsRunning(t *testing.T) {
	path := writeConfig(t, "")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	// Invalid level fails validation: the callback must not fire.
	if err := os.WriteFile(path, []byte("logging:\n  level: verbose\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	select {
	case <-reloaded:
		t.Fatal("callback fired for invalid config")
	case <-time.After(500 * time.Millisecond):
	}

	// A subsequent valid write still reloads.
	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "warn" {
			t.Errorf("reloaded logging.level = %q, want warn", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not recover after invalid write")
	}
}

func TestWatcher_TruncateThenWriteDeliversFinalContent(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	// A save is not atomic: the file is truncated first and the content lands
	// in a separate write. The watcher must deliver the settled content, never
	// a parse of the empty intermediate state.
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("truncate config: %v", err)
	}
	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "warn" {
			t.Errorf("reloaded logging.level = %q, want warn", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire after settled write")
	}

	// The burst coalesces into exactly one delivery.
	select {
	case cfg := <-reloaded:
		t.Errorf("extra reload delivered logging.level %q", cfg.Logging.Level)
	case <-time.After(300 * time.Millisecond):
	}
}

// writeConfig drops a YAML config into a temp dir and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
