package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfigDefaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	if c.MaxOpenConns != 25 || c.MaxIdleConns != 25 {
		t.Fatalf("unexpected pool defaults: %+v", c)
	}
	if c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %v", c.PingTimeout)
	}
}

func TestPostgresPoolConfigKeepsExplicitValues(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 5, PingTimeout: time.Second}.withDefaults()
	if c.MaxOpenConns != 5 {
		t.Fatalf("explicit MaxOpenConns overridden: %d", c.MaxOpenConns)
	}
	if c.PingTimeout != time.Second {
		t.Fatalf("explicit PingTimeout overridden: %v", c.PingTimeout)
	}
}

func TestRedisConfigDefaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if c.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected dial timeout: %v", c.DialTimeout)
	}
	if c.PoolSize != 20 {
		t.Fatalf("unexpected pool size: %d", c.PoolSize)
	}
}
