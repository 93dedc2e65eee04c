// Package config loads settings from the environment, with an optional YAML
// file as the base layer. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string `yaml:"api_port"`
	LogLevel string `yaml:"log_level"`

	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`

	EmbedURL   string `yaml:"embed_url"`
	EmbedModel string `yaml:"embed_model"`

	RerankURL string `yaml:"rerank_url"`

	IndexPath string `yaml:"index_path"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	TopKDense        int     `yaml:"topk_dense"`
	TopKSparse       int     `yaml:"topk_sparse"`
	TopKFused        int     `yaml:"topk_fused"`
	TopKRerank       int     `yaml:"topk_rerank"`
	RRFK             int     `yaml:"rrf_k"`
	MaxIters         int     `yaml:"max_iters"`
	ExpandFactor     float64 `yaml:"expand_factor"`
	MaxPerDoc        int     `yaml:"max_per_doc"`
	MinDocs          int     `yaml:"min_docs"`
	MaxCharsPerChunk int     `yaml:"max_chars_per_chunk"`

	APIRateLimitRPS   float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst int     `yaml:"api_rate_limit_burst"`
	APIMaxInFlight    int     `yaml:"api_max_in_flight"`
}

// Load reads the optional file named by CONFIG_PATH, then overlays the
// environment on top.
func Load() (Config, error) {
	cfg := Config{}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.APIPort = mustEnv("API_PORT", fallback(cfg.APIPort, "8080"))
	cfg.LogLevel = mustEnv("LOG_LEVEL", fallback(cfg.LogLevel, "info"))

	cfg.QdrantURL = mustEnv("QDRANT_URL", fallback(cfg.QdrantURL, "http://localhost:6333"))
	cfg.QdrantCollection = mustEnv("QDRANT_COLLECTION", fallback(cfg.QdrantCollection, "chunks"))

	cfg.EmbedURL = mustEnv("EMBED_URL", fallback(cfg.EmbedURL, "http://localhost:11434"))
	cfg.EmbedModel = mustEnv("EMBED_MODEL", fallback(cfg.EmbedModel, "nomic-embed-text"))

	cfg.RerankURL = mustEnv("RERANK_URL", cfg.RerankURL)

	cfg.IndexPath = mustEnv("INDEX_PATH", fallback(cfg.IndexPath, "./data/index"))

	cfg.NATSURL = mustEnv("NATS_URL", fallback(cfg.NATSURL, "nats://localhost:4222"))
	cfg.NATSSubject = mustEnv("NATS_SUBJECT", fallback(cfg.NATSSubject, "index.rebuild"))

	cfg.TopKDense = mustEnvInt("TOPK_DENSE", fallbackInt(cfg.TopKDense, 60))
	cfg.TopKSparse = mustEnvInt("TOPK_SPARSE", fallbackInt(cfg.TopKSparse, 60))
	cfg.TopKFused = mustEnvInt("TOPK_FUSED", fallbackInt(cfg.TopKFused, 80))
	cfg.TopKRerank = mustEnvInt("TOPK_RERANK", fallbackInt(cfg.TopKRerank, 12))
	cfg.RRFK = mustEnvInt("RRF_K", fallbackInt(cfg.RRFK, 60))
	cfg.MaxIters = mustEnvInt("MAX_ITERS", fallbackInt(cfg.MaxIters, 2))
	cfg.ExpandFactor = mustEnvFloat("EXPAND_FACTOR", fallbackFloat(cfg.ExpandFactor, 1.2))
	cfg.MaxPerDoc = mustEnvInt("MAX_PER_DOC", fallbackInt(cfg.MaxPerDoc, 3))
	cfg.MinDocs = mustEnvInt("MIN_DOCS", fallbackInt(cfg.MinDocs, 3))
	cfg.MaxCharsPerChunk = mustEnvInt("MAX_CHARS_PER_CHUNK", fallbackInt(cfg.MaxCharsPerChunk, 1600))

	cfg.APIRateLimitRPS = mustEnvFloat("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS)
	cfg.APIRateLimitBurst = mustEnvInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst)
	cfg.APIMaxInFlight = mustEnvInt("API_MAX_IN_FLIGHT", cfg.APIMaxInFlight)

	return cfg, nil
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func fallbackInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func fallbackFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
