package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config holds the runtime knobs of the graphload CLI, read from the
// environment. Flags cover the per-invocation inputs; the environment covers
// the deployment-shaped things.
type Config struct {
	Brokers []string

	VerticesTopic    string
	EdgesTopic       string
	VerticesOutTopic string
	EdgesOutTopic    string

	NumPartitions     int
	ReplicationFactor int

	PollInterval  time.Duration
	IdleThreshold time.Duration
}

func FromEnv() (Config, error) {
	cfg := Config{
		Brokers:          strings.Split(envOr("GRAPH_BROKERS", "localhost:9092"), ","),
		VerticesTopic:    envOr("GRAPH_VERTICES_TOPIC", "vertices"),
		EdgesTopic:       envOr("GRAPH_EDGES_TOPIC", "edges"),
		VerticesOutTopic: envOr("GRAPH_VERTICES_OUT_TOPIC", "vertices-out"),
		EdgesOutTopic:    envOr("GRAPH_EDGES_OUT_TOPIC", "edges-grouped-by-source"),
	}

	var err error
	if cfg.NumPartitions, err = envInt("GRAPH_PARTITIONS", 1); err != nil {
		return Config{}, err
	}
	if cfg.ReplicationFactor, err = envInt("GRAPH_REPLICATION_FACTOR", 1); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = envDuration("GRAPH_POLL_INTERVAL", time.Second); err != nil {
		return Config{}, err
	}
	if cfg.IdleThreshold, err = envDuration("GRAPH_IDLE_THRESHOLD", 10*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.NumPartitions < 1 {
		return Config{}, errors.Errorf("GRAPH_PARTITIONS must be >= 1, got %d", cfg.NumPartitions)
	}
	if cfg.ReplicationFactor < 1 {
		return Config{}, errors.Errorf("GRAPH_REPLICATION_FACTOR must be >= 1, got %d", cfg.ReplicationFactor)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}
