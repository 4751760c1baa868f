package config

import (
	"reflect"
	"testing"
)

// clearEnv blanks every variable Load reads so ambient values cannot leak
// into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "SQLITE_PATH", "REDIS_URL",
		"JWT_SECRET", "HISTORY_LIMIT", "ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env, got %q", cfg.Env)
	}
	if cfg.HistoryLimit != 10 {
		t.Fatalf("expected history limit 10, got %d", cfg.HistoryLimit)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"*"}) {
		t.Fatalf("expected wildcard origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Fatal("expected empty backend URLs by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("HISTORY_LIMIT", "25")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Fatalf("expected port 9000, got %q", cfg.Port)
	}
	if cfg.HistoryLimit != 25 {
		t.Fatalf("expected history limit 25, got %d", cfg.HistoryLimit)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("expected %v, got %v", want, cfg.AllowedOrigins)
	}
}

func TestLoadIgnoresInvalidHistoryLimit(t *testing.T) {
	clearEnv(t)

	for _, bad := range []string{"abc", "-1", "0"} {
		t.Setenv("HISTORY_LIMIT", bad)
		if cfg := Load(); cfg.HistoryLimit != 10 {
			t.Fatalf("HISTORY_LIMIT=%q: expected fallback 10, got %d", bad, cfg.HistoryLimit)
		}
	}
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for production without JWT_SECRET")
		}
	}()
	Load()
}
