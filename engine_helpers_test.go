package goSession

import (
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goSession/crypt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeMaterial struct {
	name   string
	closed atomic.Int32
	err    error
}

func (m *fakeMaterial) Close() error {
	m.closed.Add(1)
	return m.err
}

func (m *fakeMaterial) Closed() int32 { return m.closed.Load() }

func (m *fakeMaterial) String() string { return "(fake " + m.name + ")" }

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Key.KDF = crypt.KDFParams{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		KeyLength:   crypt.DefaultBlowfishKeySize,
	}
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func buildTestEngine(t *testing.T, cfg Config, sink AuditSink) (*Engine, func()) {
	t.Helper()

	engine, err := New().
		WithConfig(cfg).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine, engine.Close
}

func buildClaimEngine(t *testing.T, rdb *redis.Client, owner string) *Engine {
	t.Helper()

	cfg := testConfig()
	cfg.Claims.Enabled = true
	cfg.Claims.Owner = owner

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine
}
