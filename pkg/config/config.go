// Package config manages partitioner configuration using Viper, following
// one config object through the whole pipeline.
package config

import (
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config wraps a viper instance seeded with defaults for every subsystem.
type Config struct {
	v *viper.Viper
}

// NewConfig creates a configuration with defaults.
func NewConfig() *Config {
	v := viper.New()

	// Partition parameters
	v.SetDefault("partition.k", 2)
	v.SetDefault("partition.epsilon", 0.03)
	v.SetDefault("partition.objective", "km1")
	v.SetDefault("partition.seed", int64(42))
	v.SetDefault("partition.deterministic", false)
	v.SetDefault("partition.write_partition", false)
	v.SetDefault("partition.partition_output", "")

	// Shared-memory parameters
	v.SetDefault("shared_memory.num_threads", runtime.NumCPU())

	// Coarsening parameters
	v.SetDefault("coarsening.max_allowed_weight_multiplier", 1.0)
	v.SetDefault("coarsening.contraction_limit_multiplier", 160)
	v.SetDefault("coarsening.minimum_shrink_factor", 1.01)
	v.SetDefault("coarsening.max_levels", 100)
	v.SetDefault("coarsening.use_community_structure", false)

	// Refinement parameters
	v.SetDefault("refinement.lp.algorithm", "km1")
	v.SetDefault("refinement.lp.maximum_iterations", 5)
	v.SetDefault("refinement.fm.algorithm", "multitry")
	v.SetDefault("refinement.fm.num_seed_nodes", 5)
	v.SetDefault("refinement.fm.num_searches", 0) // 0: one per thread
	v.SetDefault("refinement.fm.max_rounds", 10)
	v.SetDefault("refinement.fm.adaptive_stopping_moves", 350)
	v.SetDefault("refinement.fm.finished_tasks_limit", 0) // 0: unbounded
	v.SetDefault("refinement.fm.gain_strategy", "recompute")
	v.SetDefault("refinement.flow.algorithm", "do_nothing")
	v.SetDefault("refinement.flow.max_tasks_on_block", 2)
	v.SetDefault("refinement.flow.max_rounds", 3)
	v.SetDefault("refinement.time_limit_ms", 0) // 0: no limit

	// Logging parameters
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.enable_progress", true)

	return &Config{v: v}
}

// LoadFromFile loads configuration from file.
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Set allows dynamic configuration changes (CLI flags, HTTP requests).
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Getters for partition parameters
func (c *Config) K() int32                { return c.v.GetInt32("partition.k") }
func (c *Config) Epsilon() float64        { return c.v.GetFloat64("partition.epsilon") }
func (c *Config) Objective() string       { return c.v.GetString("partition.objective") }
func (c *Config) Seed() int64             { return c.v.GetInt64("partition.seed") }
func (c *Config) Deterministic() bool     { return c.v.GetBool("partition.deterministic") }
func (c *Config) WritePartition() bool    { return c.v.GetBool("partition.write_partition") }
func (c *Config) PartitionOutput() string { return c.v.GetString("partition.partition_output") }

func (c *Config) NumThreads() int { return c.v.GetInt("shared_memory.num_threads") }

// Getters for coarsening parameters
func (c *Config) MaxAllowedWeightMultiplier() float64 {
	return c.v.GetFloat64("coarsening.max_allowed_weight_multiplier")
}
func (c *Config) ContractionLimitMultiplier() int {
	return c.v.GetInt("coarsening.contraction_limit_multiplier")
}
func (c *Config) MinimumShrinkFactor() float64 {
	return c.v.GetFloat64("coarsening.minimum_shrink_factor")
}
func (c *Config) MaxLevels() int { return c.v.GetInt("coarsening.max_levels") }
func (c *Config) UseCommunityStructure() bool {
	return c.v.GetBool("coarsening.use_community_structure")
}

// Getters for refinement parameters
func (c *Config) LPAlgorithm() string      { return c.v.GetString("refinement.lp.algorithm") }
func (c *Config) LPMaximumIterations() int { return c.v.GetInt("refinement.lp.maximum_iterations") }
func (c *Config) FMAlgorithm() string      { return c.v.GetString("refinement.fm.algorithm") }
func (c *Config) FMNumSeedNodes() int      { return c.v.GetInt("refinement.fm.num_seed_nodes") }
func (c *Config) FMNumSearches() int       { return c.v.GetInt("refinement.fm.num_searches") }
func (c *Config) FMMaxRounds() int         { return c.v.GetInt("refinement.fm.max_rounds") }
func (c *Config) FMAdaptiveStoppingMoves() int {
	return c.v.GetInt("refinement.fm.adaptive_stopping_moves")
}
func (c *Config) FMFinishedTasksLimit() int { return c.v.GetInt("refinement.fm.finished_tasks_limit") }
func (c *Config) FMGainStrategy() string    { return c.v.GetString("refinement.fm.gain_strategy") }
func (c *Config) FlowAlgorithm() string     { return c.v.GetString("refinement.flow.algorithm") }
func (c *Config) FlowMaxTasksOnBlock() int  { return c.v.GetInt("refinement.flow.max_tasks_on_block") }
func (c *Config) FlowMaxRounds() int        { return c.v.GetInt("refinement.flow.max_rounds") }
func (c *Config) TimeLimitMS() int64        { return c.v.GetInt64("refinement.time_limit_ms") }

// Getters for logging parameters
func (c *Config) LogLevel() string     { return c.v.GetString("logging.level") }
func (c *Config) EnableProgress() bool { return c.v.GetBool("logging.enable_progress") }

// CreateLogger creates a zerolog logger based on config.
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "partitioner").Logger()
}
