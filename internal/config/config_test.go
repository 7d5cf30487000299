package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.VehicleConnectTimeout != 5*time.Second {
		t.Fatalf("expected 5s connect timeout, got %v", cfg.VehicleConnectTimeout)
	}
	if cfg.CameraFailureBackoff != 50*time.Millisecond {
		t.Fatalf("expected 50ms backoff, got %v", cfg.CameraFailureBackoff)
	}
	if cfg.RedisTimeout != 2*time.Second || cfg.PostgresConnectTimeout != 5*time.Second {
		t.Fatalf("unexpected store timeouts redis=%v postgres=%v", cfg.RedisTimeout, cfg.PostgresConnectTimeout)
	}
	if cfg.CameraFPS != 25 {
		t.Fatalf("expected 25 fps default, got %v", cfg.CameraFPS)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("REDIS_TIMEOUT", "750ms")
	t.Setenv("VEHICLE_WS_URL", "ws://192.168.1.21:8000/ws")
	t.Setenv("VEHICLE_CONNECT_TIMEOUT", "2s")
	t.Setenv("CAMERA_INDEX", "1")
	t.Setenv("STORE_DRIVER", "sqlite")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" || cfg.RedisPassword != "hunter2" || cfg.RedisTimeout != 750*time.Millisecond {
		t.Fatalf("expected override redis")
	}
	if cfg.VehicleWSURL != "ws://192.168.1.21:8000/ws" {
		t.Fatalf("expected override vehicle url")
	}
	if cfg.VehicleConnectTimeout != 2*time.Second {
		t.Fatalf("expected override timeout")
	}
	if cfg.CameraIndex != 1 {
		t.Fatalf("expected override camera index")
	}
	if cfg.StoreDriver != "sqlite" {
		t.Fatalf("expected override store driver")
	}
}
