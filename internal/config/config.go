// Package config parses node configuration from flags with environment
// variable fallback: node identity, the three listen addresses, an optional
// seed peer to join through, and the cluster-wide knobs that must match
// across every node.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dcache/internal/hashring"
)

// Config holds one node's configuration.
type Config struct {
	NodeID      string
	RequestAddr string
	PublishAddr string
	APIAddr     string
	SeedAddr    string // "" means this node bootstraps the cluster alone

	MaxSize    int
	Replicas   int // R
	Redundancy int // D

	PublishInterval time.Duration
	ExpiryWindow    time.Duration
	RequestDeadline time.Duration
}

// Defaults for the remaining knobs; replicas and redundancy default to
// internal/hashring's DefaultReplicas/DefaultRedundancy.
const (
	defaultMaxSize         = 1 << 20 // 1 MiB of key+value characters
	defaultPublishInterval = time.Second
	defaultExpiryWindow    = 5 * time.Second
	defaultRequestDeadline = 2 * time.Second
)

// Parse builds a Config from args (normally os.Args[1:]), falling back to
// environment variables and then to defaults for anything not given on the
// command line. NodeID defaults to a freshly generated uuid when neither a
// flag nor NODE_ID is set, the Go equivalent of the reference
// implementation's per-process uuid1().hex.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dcache-node", flag.ContinueOnError)

	nodeID := fs.String("node-id", getenv("NODE_ID", ""), "opaque node identifier (default: generated)")
	requestAddr := fs.String("request-addr", getenv("REQUEST_ADDR", ""), "peer request listen address (required)")
	publishAddr := fs.String("publish-addr", getenv("PUBLISH_ADDR", ""), "membership publish listen address (required)")
	apiAddr := fs.String("api-addr", getenv("API_ADDR", ""), "client API listen address (required)")
	seedAddr := fs.String("node", getenv("SEED_ADDR", ""), "an existing peer's request address to join through")

	maxSize := fs.Int("max-size", getenvInt("MAX_SIZE", defaultMaxSize), "cache-wide character budget")
	replicas := fs.Int("replicas", getenvInt("REPLICAS", hashring.DefaultReplicas), "virtual positions per node per ring (R)")
	redundancy := fs.Int("redundancy", getenvInt("REDUNDANCY", hashring.DefaultRedundancy), "number of independent rings (D)")

	publishInterval := fs.Duration("publish-interval", getenvDuration("PUBLISH_INTERVAL", defaultPublishInterval), "membership publish period")
	expiryWindow := fs.Duration("expiry-window", getenvDuration("EXPIRY_WINDOW", defaultExpiryWindow), "peer last-seen expiry window")
	requestDeadline := fs.Duration("request-deadline", getenvDuration("REQUEST_DEADLINE", defaultRequestDeadline), "API fan-out deadline")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	id := *nodeID
	if id == "" {
		id = uuid.NewString()
	}

	cfg := &Config{
		NodeID:          id,
		RequestAddr:     *requestAddr,
		PublishAddr:     *publishAddr,
		APIAddr:         *apiAddr,
		SeedAddr:        *seedAddr,
		MaxSize:         *maxSize,
		Replicas:        *replicas,
		Redundancy:      *redundancy,
		PublishInterval: *publishInterval,
		ExpiryWindow:    *expiryWindow,
		RequestDeadline: *requestDeadline,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that these knobs are sane before the node starts serving.
func (c *Config) Validate() error {
	if c.RequestAddr == "" {
		return fmt.Errorf("config: request-addr is required")
	}
	if c.PublishAddr == "" {
		return fmt.Errorf("config: publish-addr is required")
	}
	if c.APIAddr == "" {
		return fmt.Errorf("config: api-addr is required")
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("config: max-size must be positive, got %d", c.MaxSize)
	}
	if c.Replicas <= 0 {
		return fmt.Errorf("config: replicas must be positive, got %d", c.Replicas)
	}
	if c.Redundancy <= 0 {
		return fmt.Errorf("config: redundancy must be positive, got %d", c.Redundancy)
	}
	if c.PublishInterval <= 0 {
		return fmt.Errorf("config: publish-interval must be positive, got %s", c.PublishInterval)
	}
	// Expiry window must be at least 3x the publish interval so one dropped
	// publication doesn't evict a healthy peer.
	if c.ExpiryWindow < 3*c.PublishInterval {
		return fmt.Errorf("config: expiry-window (%s) must be at least 3x publish-interval (%s)", c.ExpiryWindow, c.PublishInterval)
	}
	if c.RequestDeadline <= 0 {
		return fmt.Errorf("config: request-deadline must be positive, got %s", c.RequestDeadline)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
