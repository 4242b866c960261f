package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/parser"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partitioner"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

func main() {
	hypergraphFile := flag.String("h", "", "Input hypergraph path (hMetis format)")
	objective := flag.String("o", "km1", "Objective: cut or km1")
	k := flag.Int("k", 2, "Number of blocks (>= 2)")
	epsilon := flag.Float64("e", 0.03, "Imbalance tolerance epsilon (> 0)")
	threads := flag.Int("t", 0, "Thread count (0: all cores)")
	seed := flag.Int64("seed", 42, "RNG seed")
	deterministic := flag.Bool("deterministic", false, "Reproducible results run-to-run")
	writePartition := flag.Bool("write-partition", false, "Emit partition file")
	partitionOutput := flag.String("partition-output", "", "Partition file destination")
	rLP := flag.String("r-lp", "km1", "Label propagation refiner: do_nothing, cut, km1")
	rFM := flag.String("r-fm", "multitry", "FM refiner: do_nothing, multitry, boundary")
	rFlow := flag.String("r-flow", "do_nothing", "Flow scheduler: do_nothing, opt, match")
	configFile := flag.String("config", "", "Optional config file overriding defaults")
	jsonOutput := flag.Bool("json", false, "Print the result summary as JSON")
	flag.Parse()

	if *hypergraphFile == "" {
		fmt.Fprintln(os.Stderr, "error: no input hypergraph given (-h <file>)")
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.NewConfig()
	if *configFile != "" {
		if err := cfg.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.Set("partition.k", *k)
	cfg.Set("partition.epsilon", *epsilon)
	cfg.Set("partition.objective", *objective)
	cfg.Set("partition.seed", *seed)
	cfg.Set("partition.deterministic", *deterministic)
	cfg.Set("partition.write_partition", *writePartition)
	cfg.Set("partition.partition_output", *partitionOutput)
	cfg.Set("refinement.lp.algorithm", *rLP)
	cfg.Set("refinement.fm.algorithm", *rFM)
	cfg.Set("refinement.flow.algorithm", *rFlow)
	if *threads > 0 {
		cfg.Set("shared_memory.num_threads", *threads)
	}

	hg, err := parser.ReadHypergraphFile(*hypergraphFile, cfg.Deterministic(), cfg.NumThreads())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}

	result, err := partitioner.NewPartitioner(cfg).Partition(hg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}

	if *jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "error: encode result: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("%s = %d (cut = %d, km1 = %d, soed = %d), imbalance = %.4f\n",
			result.Objective, result.Quality, result.Cut, result.KM1, result.SOED, result.Imbalance)
	}

	if cfg.WritePartition() {
		out := cfg.PartitionOutput()
		if out == "" {
			out = *hypergraphFile + fmt.Sprintf(".part%d", *k)
		}
		if err := parser.WritePartitionFile(out, result.Partition); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// exitCode maps error kinds to distinct nonzero exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, validation.ErrInvalidInput):
		return 2
	case errors.Is(err, validation.ErrBalanceInfeasible):
		return 3
	case errors.Is(err, validation.ErrInvariantViolated):
		return 4
	}
	return 1
}
