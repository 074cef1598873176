package config

import (
	"testing"
	"time"
)

func TestConfigMapReaders(t *testing.T) {
	cfg := map[string]interface{}{
		"port":      6143,
		"workers":   float64(4),
		"scan":      "30",
		"schedule":  "@every 1m",
		"upstreams": []interface{}{"http://a", "", "http://b"},
		"single":    "http://c",
	}
	if Int(cfg, "port", 0) != 6143 || Int(cfg, "workers", 0) != 4 || Int(cfg, "scan", 0) != 30 {
		t.Fatal("Int conversions failed")
	}
	if Int(cfg, "missing", 7) != 7 {
		t.Fatal("Int default ignored")
	}
	if String(cfg, "schedule", "") != "@every 1m" || String(cfg, "missing", "x") != "x" {
		t.Fatal("String failed")
	}
	if got := Strings(cfg, "upstreams"); len(got) != 2 || got[1] != "http://b" {
		t.Fatalf("Strings = %v", got)
	}
	if got := Strings(cfg, "single"); len(got) != 1 {
		t.Fatalf("Strings scalar = %v", got)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CL_TEST_BOOL", "true")
	t.Setenv("CL_TEST_DUR", "90s")
	t.Setenv("CL_TEST_INT", "12")
	if EnvInt("CL_TEST_INT", 0) != 12 || EnvInt("CL_TEST_UNSET", 3) != 3 {
		t.Fatal("EnvInt")
	}
	t.Setenv("REDIS_ADDR", "")
	if !EnvBool("CL_TEST_BOOL", false) || EnvBool("CL_TEST_UNSET", false) {
		t.Fatal("EnvBool")
	}
	if EnvDuration("CL_TEST_DUR", 0) != 90*time.Second {
		t.Fatal("EnvDuration")
	}
	if _, ok := Redis(); ok {
		t.Fatal("redis should be disabled without REDIS_ADDR")
	}
	t.Setenv("REDIS_ADDR", "localhost:6379")
	if r, ok := Redis(); !ok || r.TTL != DefaultRegistryCacheTTL {
		t.Fatalf("redis settings %+v", r)
	}
}
