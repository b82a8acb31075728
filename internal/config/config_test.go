package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	ResetForTest()
	// ensure defaults kick in with empty env
	os.Unsetenv("PORT")
	os.Unsetenv("LAYOUT_MAX_NODES")
	os.Unsetenv("LAYOUT_ITERATIONS")
	os.Unsetenv("ENGINE_PRECISION")
	os.Unsetenv("ENGINE_STRATEGY")
	os.Unsetenv("LOG_LEVEL")

	cfg := Load()
	if cfg.Port != "8000" {
		t.Fatalf("expected default port 8000, got %q", cfg.Port)
	}
	if cfg.LayoutMaxNodes != 5000 || cfg.LayoutIterations != 400 {
		t.Fatalf("unexpected layout defaults: nodes=%d iterations=%d", cfg.LayoutMaxNodes, cfg.LayoutIterations)
	}
	if cfg.EnginePrecision != 0 {
		t.Fatalf("expected engine precision to defer to the engine, got %d", cfg.EnginePrecision)
	}
	if cfg.EngineStrategy != "path" {
		t.Fatalf("expected default strategy path, got %q", cfg.EngineStrategy)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		t.Fatal("expected development CORS origins by default")
	}
	ResetForTest()
}

func TestLoadReadsEnvironment(t *testing.T) {
	ResetForTest()
	t.Setenv("PORT", "9090")
	t.Setenv("ENGINE_STRATEGY", "SUBTREE")
	t.Setenv("LAYOUT_REPULSION_SCALE", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.EngineStrategy != "subtree" {
		t.Errorf("EngineStrategy = %q, want subtree", cfg.EngineStrategy)
	}
	if cfg.RepulsionScale != 2.5 {
		t.Errorf("RepulsionScale = %v, want 2.5", cfg.RepulsionScale)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	ResetForTest()
}
