package provider

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// PoolConfig tunes the shared HTTP transport an adapter's client is built
// from. Adapted from the connection-pool manager this gateway's style is
// grounded on; response header timeouts are intentionally left to the
// caller's context deadline (the per-provider completion timeout).
type PoolConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
}

// DefaultPoolConfig returns production-grade pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 32,
		MaxConnsPerHost:     64,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialTimeout:         10 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

// NewPooledClient builds an *http.Client with a dedicated transport sized
// by cfg. Each adapter owns one so idle connections to its vendor host are
// reused across requests without sharing a transport across vendors.
func NewPooledClient(cfg PoolConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: cfg.KeepAlive}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
	// Timeout is intentionally unset here; per-call context deadlines
	// (see internal/fallback) govern how long a single request may run.
	return &http.Client{Transport: transport}
}
