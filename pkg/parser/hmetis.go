// Package parser reads hMetis-style hypergraph files and writes partition
// files.
package parser

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

// ReadHypergraphFile parses an hMetis file and constructs a static
// hypergraph. The header line is "m n [fmt]" where the tens digit of fmt
// flags edge weights and the ones digit flags vertex weights. Pin ids in the
// file are 1-based.
func ReadHypergraphFile(path string, stableConstruction bool, workers int) (*hypergraph.Hypergraph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open hypergraph file: %v", validation.ErrInvalidInput, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	fields, err := nextContentLine(scanner)
	if err != nil {
		return nil, fmt.Errorf("%w: missing header line", validation.ErrInvalidInput)
	}
	if len(fields) < 2 || len(fields) > 3 {
		return nil, fmt.Errorf("%w: header must be 'm n [fmt]'", validation.ErrInvalidInput)
	}
	numEdges, err1 := strconv.ParseUint(fields[0], 10, 32)
	numNodes, err2 := strconv.ParseUint(fields[1], 10, 32)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: malformed header %q", validation.ErrInvalidInput, strings.Join(fields, " "))
	}
	hasEdgeWeights, hasNodeWeights := false, false
	if len(fields) == 3 {
		format, err := strconv.Atoi(fields[2])
		if err != nil || format < 0 || format > 11 {
			return nil, fmt.Errorf("%w: unknown fmt flag %q", validation.ErrInvalidInput, fields[2])
		}
		hasEdgeWeights = format/10%10 == 1
		hasNodeWeights = format%10 == 1
	}

	edgePins := make([][]hypergraph.NodeID, numEdges)
	var edgeWeights []int64
	if hasEdgeWeights {
		edgeWeights = make([]int64, numEdges)
	}
	for e := uint64(0); e < numEdges; e++ {
		fields, err := nextContentLine(scanner)
		if err != nil {
			return nil, fmt.Errorf("%w: expected %d edge lines, got %d", validation.ErrInvalidInput, numEdges, e)
		}
		pos := 0
		if hasEdgeWeights {
			w, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("%w: bad weight on edge %d", validation.ErrInvalidInput, e+1)
			}
			edgeWeights[e] = w
			pos = 1
		}
		if len(fields) == pos {
			return nil, fmt.Errorf("%w: edge %d has no pins", validation.ErrInvalidInput, e+1)
		}
		pins := make([]hypergraph.NodeID, 0, len(fields)-pos)
		for _, f := range fields[pos:] {
			pin, err := strconv.ParseUint(f, 10, 32)
			if err != nil || pin < 1 || pin > numNodes {
				return nil, fmt.Errorf("%w: pin %q of edge %d out of range [1, %d]", validation.ErrInvalidInput, f, e+1, numNodes)
			}
			pins = append(pins, hypergraph.NodeID(pin-1))
		}
		edgePins[e] = pins
	}

	var nodeWeights []int64
	if hasNodeWeights {
		nodeWeights = make([]int64, numNodes)
		for v := uint64(0); v < numNodes; v++ {
			fields, err := nextContentLine(scanner)
			if err != nil || len(fields) != 1 {
				return nil, fmt.Errorf("%w: expected %d vertex weight lines", validation.ErrInvalidInput, numNodes)
			}
			w, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("%w: bad weight for vertex %d", validation.ErrInvalidInput, v+1)
			}
			nodeWeights[v] = w
		}
	}

	return hypergraph.Build(uint32(numNodes), edgePins, edgeWeights, nodeWeights, hypergraph.BuildOptions{
		StableConstruction: stableConstruction,
		Workers:            workers,
	})
}

// nextContentLine returns the fields of the next non-empty, non-comment line.
func nextContentLine(scanner *bufio.Scanner) ([]string, error) {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		return strings.Fields(line), nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("unexpected end of file")
}

// WritePartitionFile writes one block id per vertex, one per line.
func WritePartitionFile(path string, parts []int32) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create partition file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, p := range parts {
		if _, err := fmt.Fprintln(writer, p); err != nil {
			return fmt.Errorf("write partition file: %w", err)
		}
	}
	return writer.Flush()
}
