// Package config loads the operator-facing configuration document for the
// pool, cache, selector, and store (spec.md §6 "Operator surface"). Defaults
// are applied first, then a YAML file, then a narrow set of environment
// variable overrides — the same precedence the teacher configuration layer
// uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration document.
type Config struct {
	Pool  PoolConfig  `yaml:"pool" json:"pool"`
	Cache CacheConfig `yaml:"cache" json:"cache"`
	MMR   MMRConfig   `yaml:"mmr" json:"mmr"`
	Store StoreConfig `yaml:"store" json:"store"`
}

// PoolConfig configures the adaptive embedding process pool (spec.md §4.1).
type PoolConfig struct {
	MaxFraction    float64 `yaml:"max_fraction" json:"max_fraction"`
	StartFraction  float64 `yaml:"start_fraction" json:"start_fraction"`
	MemoryStop     float64 `yaml:"memory_stop" json:"memory_stop"`
	MemoryResume   float64 `yaml:"memory_resume" json:"memory_resume"`
	CPUStop        float64 `yaml:"cpu_stop" json:"cpu_stop"`
	CPUResume      float64 `yaml:"cpu_resume" json:"cpu_resume"`
	BatchMin       int     `yaml:"batch_min" json:"batch_min"`
	BatchMax       int     `yaml:"batch_max" json:"batch_max"`
	BatchStep      int     `yaml:"batch_step" json:"batch_step"`
	BatchStart     int     `yaml:"batch_start" json:"batch_start"`
	BatchTimeoutMs int     `yaml:"batch_timeout_ms" json:"batch_timeout_ms"`
}

// CacheConfig configures the shared embedding cache (spec.md §4.1).
type CacheConfig struct {
	MaxEntries     int     `yaml:"max_entries" json:"max_entries"`
	EvictThreshold float64 `yaml:"evict_threshold" json:"evict_threshold"`
	EvictPercent   float64 `yaml:"evict_percent" json:"evict_percent"`
}

// MMRConfig configures the guarded MMR selector (spec.md §4.3).
type MMRConfig struct {
	LambdaRelevance     float64 `yaml:"lambda_relevance" json:"lambda_relevance"`
	MaxTokenBudget      int     `yaml:"max_token_budget" json:"max_token_budget"`
	TokenCushionPercent float64 `yaml:"token_cushion_percent" json:"token_cushion_percent"`
	DiversityMetric     string  `yaml:"diversity_metric" json:"diversity_metric"`
	MinCriticalCoverage float64 `yaml:"min_critical_set_coverage" json:"min_critical_set_coverage"`
}

// StoreConfig configures vector store persistence (spec.md §4.2).
type StoreConfig struct {
	SnapshotPath string `yaml:"snapshot_path" json:"snapshot_path"`
	GlobalMirror string `yaml:"global_mirror" json:"global_mirror"`
}

// SubmoduleConfig configures git submodule discovery for the filesystem
// scanner feeding the orchestrator (SPEC_FULL.md's scanner supplement).
type SubmoduleConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Recursive bool     `yaml:"recursive" json:"recursive"`
	Include   []string `yaml:"include" json:"include"`
	Exclude   []string `yaml:"exclude" json:"exclude"`
}

// DefaultConfig returns the configuration with every default from spec.md §6
// applied.
func DefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			MaxFraction:    0.69,
			StartFraction:  0.25,
			MemoryStop:     0.78,
			MemoryResume:   0.69,
			CPUStop:        0.69,
			CPUResume:      0.49,
			BatchMin:       200,
			BatchMax:       800,
			BatchStep:      100,
			BatchStart:     400,
			BatchTimeoutMs: 120_000,
		},
		Cache: CacheConfig{
			MaxEntries:     10_000,
			EvictThreshold: 0.8,
			EvictPercent:   0.2,
		},
		MMR: MMRConfig{
			LambdaRelevance:     0.7,
			MaxTokenBudget:      100_000,
			TokenCushionPercent: 0.20,
			DiversityMetric:     "semantic",
			MinCriticalCoverage: 0.95,
		},
		Store: StoreConfig{
			SnapshotPath: ".codectx/vectors.json",
			GlobalMirror: "",
		},
	}
}

// Load reads a YAML config document from path, applying it over
// DefaultConfig() and then a small set of environment variable overrides.
// A missing path is not an error: defaults (plus env overrides) are
// returned.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnv(cfg), nil
			}
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg = applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg Config) Config {
	if v, ok := envFloat("CODECTX_POOL_MAX_FRACTION"); ok {
		cfg.Pool.MaxFraction = v
	}
	if v, ok := envInt("CODECTX_POOL_BATCH_MIN"); ok {
		cfg.Pool.BatchMin = v
	}
	if v, ok := envInt("CODECTX_POOL_BATCH_MAX"); ok {
		cfg.Pool.BatchMax = v
	}
	if v, ok := envInt("CODECTX_MMR_MAX_TOKEN_BUDGET"); ok {
		cfg.MMR.MaxTokenBudget = v
	}
	if v, ok := envFloat("CODECTX_MMR_LAMBDA_RELEVANCE"); ok {
		cfg.MMR.LambdaRelevance = v
	}
	return cfg
}

func envFloat(name string) (float64, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envInt(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Validate rejects configuration error per spec.md §6 exit code 2 (fatal
// config error).
func Validate(cfg Config) error {
	if cfg.Pool.MaxFraction <= 0 || cfg.Pool.MaxFraction > 1 {
		return fmt.Errorf("config: pool.max_fraction must be in (0,1], got %v", cfg.Pool.MaxFraction)
	}
	if cfg.Pool.BatchMin <= 0 || cfg.Pool.BatchMax < cfg.Pool.BatchMin {
		return fmt.Errorf("config: pool.batch_min/batch_max invalid (%d/%d)", cfg.Pool.BatchMin, cfg.Pool.BatchMax)
	}
	if cfg.MMR.LambdaRelevance < 0 || cfg.MMR.LambdaRelevance > 1 {
		return fmt.Errorf("config: mmr.lambda_relevance must be in [0,1], got %v", cfg.MMR.LambdaRelevance)
	}
	if cfg.MMR.TokenCushionPercent < 0 || cfg.MMR.TokenCushionPercent > 0.5 {
		return fmt.Errorf("config: mmr.token_cushion_percent must be in [0,0.5], got %v", cfg.MMR.TokenCushionPercent)
	}
	if cfg.MMR.MaxTokenBudget <= 0 {
		return fmt.Errorf("config: mmr.max_token_budget must be positive")
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .codectx.yaml/.codectx.yml config file, returning the first directory
// that carries one. If neither is found before the filesystem root, the
// absolute form of startDir is returned unchanged.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("config: absolute path of %s: %w", startDir, err)
	}

	dir := absDir
	for {
		if dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		if fileExists(filepath.Join(dir, ".codectx.yaml")) || fileExists(filepath.Join(dir, ".codectx.yml")) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// MaxProcesses returns the hard ceiling on worker processes for the given
// logical core count, per spec.md §4.1: floor(max_fraction * C).
func (p PoolConfig) MaxProcesses(logicalCores int) int {
	if logicalCores <= 0 {
		logicalCores = runtime.NumCPU()
	}
	return int(p.MaxFraction * float64(logicalCores))
}

// StartProcesses returns the initial worker count: max(1, floor(start_fraction * max)).
func (p PoolConfig) StartProcesses(logicalCores int) int {
	maxP := p.MaxProcesses(logicalCores)
	start := int(p.StartFraction * float64(maxP))
	if start < 1 {
		start = 1
	}
	return start
}
