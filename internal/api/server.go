// Package api serves a read-only HTTP view of the relay chain: health,
// chain status, candidates pending availability, shard state and
// Prometheus metrics.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ShardRelay/internal/inclusion"
	"ShardRelay/internal/logger"
	"ShardRelay/internal/paras"
	"ShardRelay/internal/primitives"
)

// StatusProvider exposes chain progress for monitoring.
type StatusProvider interface {
	Round() primitives.Round
	ParentHash() primitives.Hash
	SessionIndex() (primitives.SessionIndex, error)
}

// PendingProvider exposes the inclusion engine's pending candidates.
type PendingProvider interface {
	AllPending() ([]inclusion.PendingCandidate, error)
	PendingAvailability(id primitives.ShardID) (inclusion.PendingCandidate, bool, error)
	CandidatePendingAvailability(id primitives.ShardID) (primitives.CommittedCandidateReceipt, bool, error)
	Validators() ([]primitives.ValidatorID, error)
}

// ShardProvider exposes registered shard state.
type ShardProvider interface {
	Registration(id primitives.ShardID) (paras.Registration, bool)
	Head(id primitives.ShardID) (primitives.HeadData, bool, error)
	Code(id primitives.ShardID) (primitives.ValidationCode, bool)
	FutureUpgrade(id primitives.ShardID) (paras.FutureUpgrade, bool)
	LastCodeUpgrade(id primitives.ShardID, includeFuture bool) (primitives.Round, bool)
}

// Server is the HTTP API server.
type Server struct {
	addr     string              // addr is the HTTP listen address
	status   StatusProvider      // status provides chain progress
	pending  PendingProvider     // pending provides candidates awaiting availability
	shards   ShardProvider       // shards provides heads and code
	gatherer prometheus.Gatherer // gatherer backs /metrics when set
	server   *http.Server        // server is the underlying HTTP server
}

// New creates a new HTTP API server. A nil gatherer disables /metrics.
func New(addr string, status StatusProvider, pending PendingProvider, shards ShardProvider, gatherer prometheus.Gatherer) *Server {
	return &Server{
		addr:     addr,
		status:   status,
		pending:  pending,
		shards:   shards,
		gatherer: gatherer,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /pending", s.handleAllPending)
	mux.HandleFunc("GET /pending/{shard}", s.handlePending)
	mux.HandleFunc("GET /shards/{shard}", s.handleShard)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Round      primitives.Round        `json:"round"`
	ParentHash string                  `json:"parentHash"`
	Session    primitives.SessionIndex `json:"session"`
	Validators int                     `json:"validators"`
	Pending    int                     `json:"pending"`
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil || s.pending == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}

	session, err := s.status.SessionIndex()
	if err != nil {
		writeInternal(w, err)
		return
	}

	validators, err := s.pending.Validators()
	if err != nil {
		writeInternal(w, err)
		return
	}

	pending, err := s.pending.AllPending()
	if err != nil {
		writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Round:      s.status.Round(),
		ParentHash: s.status.ParentHash().String(),
		Session:    session,
		Validators: len(validators),
		Pending:    len(pending),
	})
}

// PendingResponse describes a candidate pending availability.
// Commitment fields are only filled by GET /pending/{shard}.
type PendingResponse struct {
	Shard             primitives.ShardID   `json:"shard"`
	Core              primitives.CoreIndex `json:"core"`
	RelayParent       string               `json:"relayParent"`
	RelayParentNumber primitives.Round     `json:"relayParentNumber"`
	BackedIn          primitives.Round     `json:"backedIn"`
	Votes             int                  `json:"votes"`
	VoteBits          string               `json:"voteBits"`
	CandidateHash     string               `json:"candidateHash,omitempty"`
	HeadData          string               `json:"headData,omitempty"`
	NewCode           bool                 `json:"newCode,omitempty"`
}

func viewPending(p inclusion.PendingCandidate) PendingResponse {
	return PendingResponse{
		Shard:             p.Descriptor.ShardID,
		Core:              p.Core,
		RelayParent:       p.Descriptor.RelayParent.String(),
		RelayParentNumber: p.RelayParentNumber,
		BackedIn:          p.BackedInNumber,
		Votes:             p.AvailabilityVotes.CountOnes(),
		VoteBits:          p.AvailabilityVotes.String(),
	}
}

// handleAllPending handles GET /pending requests.
func (s *Server) handleAllPending(w http.ResponseWriter, r *http.Request) {
	if s.pending == nil {
		writeError(w, http.StatusServiceUnavailable, "inclusion not available")
		return
	}

	pending, err := s.pending.AllPending()
	if err != nil {
		writeInternal(w, err)
		return
	}

	out := make([]PendingResponse, len(pending))
	for i, p := range pending {
		out[i] = viewPending(p)
	}

	writeJSON(w, http.StatusOK, out)
}

// handlePending handles GET /pending/{shard} requests.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if s.pending == nil {
		writeError(w, http.StatusServiceUnavailable, "inclusion not available")
		return
	}

	id, err := parseShard(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, ok, err := s.pending.PendingAvailability(id)
	if err != nil {
		writeInternal(w, err)
		return
	}

	if !ok {
		writeError(w, http.StatusNotFound, "no candidate pending availability")
		return
	}

	view := viewPending(p)

	receipt, ok, err := s.pending.CandidatePendingAvailability(id)
	if err != nil {
		writeInternal(w, err)
		return
	}

	if ok {
		view.CandidateHash = receipt.Hash().String()
		view.HeadData = hex.EncodeToString(receipt.Commitments.HeadData)
		view.NewCode = receipt.Commitments.HasNewCode()
	}

	writeJSON(w, http.StatusOK, view)
}

// UpgradeResponse describes a scheduled code upgrade.
type UpgradeResponse struct {
	At       primitives.Round `json:"at"`
	CodeHash string           `json:"codeHash"`
}

// ShardResponse is the body of GET /shards/{shard}.
type ShardResponse struct {
	Shard            primitives.ShardID `json:"shard"`
	Kind             string             `json:"kind"`
	Head             string             `json:"head"`
	CodeHash         string             `json:"codeHash"`
	CodeSize         int                `json:"codeSize"`
	RequiredCollator string             `json:"requiredCollator,omitempty"`
	LastUpgrade      *primitives.Round  `json:"lastUpgrade,omitempty"`
	FutureUpgrade    *UpgradeResponse   `json:"futureUpgrade,omitempty"`
}

// handleShard handles GET /shards/{shard} requests.
func (s *Server) handleShard(w http.ResponseWriter, r *http.Request) {
	if s.shards == nil {
		writeError(w, http.StatusServiceUnavailable, "registry not available")
		return
	}

	id, err := parseShard(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg, ok := s.shards.Registration(id)
	if !ok {
		writeError(w, http.StatusNotFound, "shard not registered")
		return
	}

	head, _, err := s.shards.Head(id)
	if err != nil {
		writeInternal(w, err)
		return
	}

	code, _ := s.shards.Code(id)

	resp := ShardResponse{
		Shard:    id,
		Kind:     reg.Kind.String(),
		Head:     hex.EncodeToString(head),
		CodeHash: primitives.HashBytes(code).String(),
		CodeSize: len(code),
	}

	if reg.RequiredCollator != nil {
		resp.RequiredCollator = hex.EncodeToString(reg.RequiredCollator[:])
	}

	if last, ok := s.shards.LastCodeUpgrade(id, false); ok {
		resp.LastUpgrade = &last
	}

	if up, ok := s.shards.FutureUpgrade(id); ok {
		resp.FutureUpgrade = &UpgradeResponse{
			At:       up.At,
			CodeHash: primitives.HashBytes(up.Code).String(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeInternal logs err and answers 500 without leaking storage details.
func writeInternal(w http.ResponseWriter, err error) {
	logger.Error("api storage error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
