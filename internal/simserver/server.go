// Package simserver exposes a Go simulator function over HTTP so the
// calibration CLI can drive it through the remote evaluator.
package simserver

import (
	"encoding/json"
	"math"
	"net/http"
	"sync/atomic"

	"bayescal/adapters/evaluator"
	"bayescal/domain/calibration"
	"bayescal/internal"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server serves POST /evaluate, GET /parameters and GET /healthz.
type Server struct {
	router    *chi.Mux
	specs     []calibration.ParameterSpec
	simulate  evaluator.SimulatorFunc
	logger    *internal.Logger
	evaluated atomic.Int64
}

// New wires the routes for a simulator over specs.
func New(specs []calibration.ParameterSpec, simulate evaluator.SimulatorFunc, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router:   chi.NewRouter(),
		specs:    append([]calibration.ParameterSpec(nil), specs...),
		simulate: simulate,
		logger:   logger.WithComponent("simserver"),
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/parameters", s.handleParameters)
	s.router.Post("/evaluate", s.handleEvaluate)
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Evaluated returns how many successful evaluations were served.
func (s *Server) Evaluated() int64 {
	return s.evaluated.Load()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.specs)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluator.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, evaluator.EvaluateResponse{Error: "invalid JSON body"})
		return
	}

	vector := req.Vector
	if len(req.Parameters) > 0 {
		vector = make([]float64, len(s.specs))
		for i, spec := range s.specs {
			v, ok := req.Parameters[spec.Name]
			if !ok {
				writeJSON(w, http.StatusBadRequest, evaluator.EvaluateResponse{Error: "missing parameter " + spec.Name})
				return
			}
			vector[i] = v
		}
	}
	if len(vector) != len(s.specs) {
		writeJSON(w, http.StatusBadRequest, evaluator.EvaluateResponse{Error: "wrong number of parameters"})
		return
	}

	y, err := s.simulate(vector)
	if err != nil {
		s.logger.Warn("simulation failed at %v: %v", vector, err)
		writeJSON(w, http.StatusUnprocessableEntity, evaluator.EvaluateResponse{Error: err.Error()})
		return
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		writeJSON(w, http.StatusUnprocessableEntity, evaluator.EvaluateResponse{Error: "non-finite outcome"})
		return
	}
	s.evaluated.Add(1)
	s.logger.Debug("evaluated %v -> %g", vector, y)
	writeJSON(w, http.StatusOK, evaluator.EvaluateResponse{Outcome: &y})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
