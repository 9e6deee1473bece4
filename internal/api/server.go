// Package api is the RPC dispatch layer of the schedule service: it maps the
// wire surface onto the session manager and the two point-to-point engines,
// and translates the protocol error taxonomy into HTTP statuses. Native-call
// failures are never HTTP faults; they travel as exec_error/exec_timeout
// flags inside a 200 response so the client's training loop can treat them
// as ordinary transitions.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jqzhao7/SUPERSONIC/internal/backend"
	"github.com/jqzhao7/SUPERSONIC/internal/codec"
	"github.com/jqzhao7/SUPERSONIC/internal/observability"
	"github.com/jqzhao7/SUPERSONIC/internal/session"
	"github.com/jqzhao7/SUPERSONIC/pkg/scheduleapi"
)

type Server struct {
	manager  *session.Manager
	backends *backend.Registry
}

func NewServer(manager *session.Manager, backends *backend.Registry) *Server {
	return &Server{manager: manager, backends: backends}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/metrics/prometheus", s.handleMetricsPrometheus)
	mux.HandleFunc("/v1/sessions", s.handleSessions)
	mux.HandleFunc("/v1/sessions/", s.handleSessionByID)
	mux.HandleFunc("/v1/tvm/step", s.handleTvmStep)
	mux.HandleFunc("/v1/stoke/message", s.handleStokeMessage)
	return withTracing(withLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, observability.Default.Snapshot())
}

func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(observability.Default.RenderPrometheus()))
}

// handleSessions serves init: allocate a session, run the native engine's
// initialization, and return the frozen search-space bounds.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req scheduleapi.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.manager.Init(r.Context(), req.AlgorithmID, backend.InitParams{
		InputImage:        req.InputImage,
		MaxStageDirective: req.MaxStageDirective,
	})
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	b := sess.Bounds()
	writeJSON(w, http.StatusOK, scheduleapi.InitResponse{
		SessionID:        sess.ID(),
		MaxStage:         b.MaxStage,
		MaxDirective:     b.MaxDirective,
		MaxParam:         b.MaxParam,
		ScheduleMapRange: b.ScheduleMapRange(),
		InitTimeSec:      sess.InitTimeSec(),
	})
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "missing session id")
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.manager.Close(r.Context(), id)
		writeJSON(w, http.StatusOK, scheduleapi.CloseResponse{})
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "unknown session resource")
		return
	}
	switch parts[1] {
	case "step":
		s.handleStep(w, r, id)
	case "reset":
		s.handleReset(w, r, id)
	case "render":
		s.handleRender(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown session resource")
	}
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req scheduleapi.StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	out, err := sess.Step(r.Context(), req.Op.MapCode)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleapi.StepResponse{
		ExecError:   out.ExecError,
		ExecTimeout: out.ExecTimeout,
		Op:          scheduleapi.OperationResult{ElemID: out.ElemID},
		ExecTimeSec: out.ExecTimeSec,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req scheduleapi.ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	codes := make([]int32, len(req.Op))
	for i, op := range req.Op {
		codes[i] = op.MapCode
	}
	results, err := sess.Reset(r.Context(), codes)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	resp := scheduleapi.ResetResponse{Op: make([]scheduleapi.OperationResult, len(results))}
	for i, elems := range results {
		resp.Op[i] = scheduleapi.OperationResult{ElemID: elems}
	}
	observability.Default.IncCounter("resets_total", nil, 1)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	lines, err := sess.Render()
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleapi.RenderResponse{ScheduleStr: lines})
}

// handleTvmStep serves the sequential family. There is no per-session
// lifecycle here: the engine is process-wide and a step is legal at any
// time, init or not.
func (s *Server) handleTvmStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req scheduleapi.TvmStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	eng, err := s.backends.Sequential()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	ctx, span := observability.StartSpan(r.Context(), "tvm.step",
		attribute.Int("op.action", int(req.Action)),
	)
	defer span.End()
	state, reward, maxLen, err := eng.Apply(ctx, req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	observability.Default.IncCounter("tvm_steps_total", nil, 1)
	writeJSON(w, http.StatusOK, scheduleapi.TvmStepResponse{
		State:  state,
		Reward: reward,
		MaxLen: maxLen,
	})
}

// handleStokeMessage serves the cost-search family: candidate code and its
// measured cost in, a proposed rewrite action out.
func (s *Server) handleStokeMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req scheduleapi.StokeMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	eng, err := s.backends.CostSearch()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	ctx, span := observability.StartSpan(r.Context(), "stoke.propose",
		attribute.Float64("op.cost", req.Cost),
	)
	defer span.End()
	action, err := eng.Propose(ctx, req.Code, req.Cost)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	observability.Default.IncCounter("stoke_messages_total", nil, 1)
	writeJSON(w, http.StatusOK, scheduleapi.StokeMessageResponse{Action: action})
}

// writeTaxonomyError maps protocol errors to HTTP statuses. Anything not in
// the taxonomy is a bad argument from the client, e.g. an unknown
// algorithm_id or a rejected init.
func (s *Server) writeTaxonomyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrPhaseViolation):
		writeErrorCode(w, http.StatusConflict, "phase_violation", err.Error())
	case errors.Is(err, codec.ErrOutOfRange):
		writeErrorCode(w, http.StatusBadRequest, "invalid_operation", err.Error())
	case errors.Is(err, session.ErrUnknownSession):
		writeErrorCode(w, http.StatusNotFound, "unknown_session", err.Error())
	case errors.Is(err, session.ErrSessionDead):
		writeErrorCode(w, http.StatusGone, "session_dead", err.Error())
	case errors.Is(err, session.ErrSessionLimit):
		writeErrorCode(w, http.StatusTooManyRequests, "session_limit", err.Error())
	default:
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, scheduleapi.ErrorResponse{Error: msg})
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, scheduleapi.ErrorResponse{Error: msg, Code: code})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		traceID := span.SpanContext().TraceID().String()
		if traceID != "" {
			sw.Header().Set("X-Trace-ID", traceID)
		}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", sw.status))
	})
}
