package utils

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestWithTx_SignatureSmoke(t *testing.T) {
	// This test can't run without a real *sql.DB; keep it as a compile-time smoke test
	// for the helper signature.
	var _ = WithTx
	_ = context.Background()
	_ = &sql.DB{}
	_ = errors.New("x")
}

func TestPoolDefaults(t *testing.T) {
	cfg := PostgresPoolConfig{}.withDefaults()
	if cfg.MaxOpenConns != 30 || cfg.MaxIdleConns != 10 {
		t.Fatalf("unexpected pool sizing: %+v", cfg)
	}
	if cfg.ConnMaxLifetime <= 0 || cfg.ConnMaxIdleTime <= 0 || cfg.PingTimeout <= 0 {
		t.Fatalf("missing duration defaults: %+v", cfg)
	}

	// Explicit values are left alone.
	custom := PostgresPoolConfig{MaxOpenConns: 5}.withDefaults()
	if custom.MaxOpenConns != 5 {
		t.Fatalf("explicit MaxOpenConns overridden: %+v", custom)
	}
}
