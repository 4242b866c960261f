// Command server exposes the partitioner over HTTP: submit a job, poll its
// status, fetch the finished assignment.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/parser"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partitioner"
)

type partitionRequest struct {
	HypergraphPath string  `json:"hypergraphPath"`
	K              int32   `json:"k"`
	Epsilon        float64 `json:"epsilon"`
	Objective      string  `json:"objective"`
	Seed           int64   `json:"seed"`
}

type job struct {
	ID        string              `json:"id"`
	Status    string              `json:"status"` // queued, running, done, failed
	Error     string              `json:"error,omitempty"`
	Result    *partitioner.Result `json:"result,omitempty"`
	Partition []int32             `json:"partition,omitempty"`
}

type server struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newServer() *server {
	return &server{jobs: make(map[string]*job)}
}

func (s *server) submitPartition(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req partitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body"})
		return
	}
	if req.HypergraphPath == "" || req.K < 2 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "hypergraphPath and k >= 2 are required"})
		return
	}

	j := &job{ID: uuid.New().String(), Status: "queued"}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	go s.run(j, req)

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(j)
}

func (s *server) run(j *job, req partitionRequest) {
	s.setStatus(j, "running", "")

	cfg := config.NewConfig()
	cfg.Set("partition.k", req.K)
	if req.Epsilon > 0 {
		cfg.Set("partition.epsilon", req.Epsilon)
	}
	if req.Objective != "" {
		cfg.Set("partition.objective", req.Objective)
	}
	if req.Seed != 0 {
		cfg.Set("partition.seed", req.Seed)
	}

	hg, err := parser.ReadHypergraphFile(req.HypergraphPath, cfg.Deterministic(), cfg.NumThreads())
	if err != nil {
		s.setStatus(j, "failed", err.Error())
		return
	}
	result, err := partitioner.NewPartitioner(cfg).Partition(hg)
	if err != nil {
		s.setStatus(j, "failed", err.Error())
		return
	}

	s.mu.Lock()
	j.Status = "done"
	j.Result = result
	j.Partition = result.Partition
	s.mu.Unlock()
}

func (s *server) setStatus(j *job, status, errMsg string) {
	s.mu.Lock()
	j.Status = status
	j.Error = errMsg
	s.mu.Unlock()
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	s.mu.RLock()
	j, ok := s.jobs[mux.Vars(r)["id"]]
	s.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "job not found"})
		return
	}
	json.NewEncoder(w).Encode(j)
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	s := newServer()
	r := mux.NewRouter()
	r.HandleFunc("/api/partition", s.submitPartition).Methods("POST")
	r.HandleFunc("/api/jobs/{id}", s.getJob).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	})

	logger := config.NewConfig().CreateLogger()
	logger.Info().Str("addr", *addr).Msg("Partition service listening")
	if err := http.ListenAndServe(*addr, c.Handler(r)); err != nil {
		logger.Fatal().Err(err).Msg("Server terminated")
	}
}
