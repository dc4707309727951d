package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flynn-ai/agentcore/internal/agent"
	"github.com/flynn-ai/agentcore/internal/checkpoint"
	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/internal/runlog"
	"github.com/flynn-ai/agentcore/internal/tools"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

// --- Turns ---

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var wire protocol.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		s.writeError(w, badRequest("invalid json"))
		return
	}
	req, err := agent.RequestFromWire(wire)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.orch.RunTurn(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Wire())
}

// --- Threads ---

type checkpointView struct {
	ThreadID     string         `json:"thread_id"`
	CheckpointID string         `json:"checkpoint_id"`
	ParentID     string         `json:"parent_checkpoint_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Messages     int            `json:"messages"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}

	cps, err := s.store.List(r.Context(), threadID, checkpoint.ListOptions{
		Limit:  limit,
		Before: r.URL.Query().Get("before"),
	})
	if errors.Is(err, checkpoint.ErrNotFound) {
		http.Error(w, "checkpoint not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]checkpointView, 0, len(cps))
	for _, cp := range cps {
		var st agent.TurnState
		_ = json.Unmarshal(cp.State, &st)
		views = append(views, checkpointView{
			ThreadID:     cp.ThreadID,
			CheckpointID: cp.ID,
			ParentID:     cp.ParentID,
			Metadata:     cp.Metadata,
			Messages:     len(st.Messages),
			CreatedAt:    cp.CreatedAt,
			UpdatedAt:    cp.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteThread(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Tools and routing ---

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids := tools.All()
	if role := tools.Role(strings.ToLower(q.Get("role"))); role != "" {
		filtered, err := tools.FilterTools(ids, role, tools.Mode(strings.ToLower(q.Get("mode"))), tools.FilterOptions{
			IncludeAdmin: role == tools.RoleAdmin,
			ExcludeWrite: q.Get("exclude_write") == "true",
			OnlyRead:     q.Get("only_read") == "true",
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		ids = filtered
	}
	writeJSON(w, http.StatusOK, s.tools.Definitions(ids))
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req protocol.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequest("invalid json"))
		return
	}

	tc := model.TaskContext{
		Tool:       req.Tool,
		TaskType:   model.TaskType(req.TaskType),
		Complexity: model.Complexity(req.Complexity),
		HasPII:     req.HasPII,
	}
	switch tc.Complexity {
	case "", model.ComplexitySimple, model.ComplexityModerate, model.ComplexityComplex:
	default:
		s.writeError(w, badRequest("unknown complexity "+req.Complexity))
		return
	}
	if c := req.Constraints; c != nil {
		tc.MaxCost = c.MaxCost
		tc.MaxLatencyMs = c.MaxLatencyMs
		tc.AllowedProviders = c.AllowedProviders
		tc.PreferredProvider = c.PreferredProvider
	}

	d := s.router.SelectModel(tc)
	writeJSON(w, http.StatusOK, protocol.RouteResponse{
		Provider:      d.Configuration.Provider,
		Model:         d.Configuration.Model,
		Tier:          string(d.Configuration.Tier),
		Compliant:     d.Configuration.Compliant,
		EstimatedCost: d.Configuration.EstimatedCost,
		HasPII:        d.HasPII,
		PIISource:     d.PIISource,
		Reason:        d.Reason,
	})
}

// --- Runs and insights ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, []runlog.Run{})
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), runlog.RunFilter{
		CallerID: r.URL.Query().Get("caller"),
		ThreadID: r.URL.Query().Get("thread"),
		Limit:    limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, []runlog.InsightRecord{})
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}
	insights, err := s.runs.ListInsights(r.Context(), runlog.InsightFilter{
		CallerID: r.URL.Query().Get("caller"),
		Status:   r.URL.Query().Get("status"),
		Limit:    limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func (s *Server) handleDismissInsight(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "insight not found", http.StatusNotFound)
		return
	}
	err := s.runs.DismissInsight(r.Context(), r.PathValue("id"))
	if errors.Is(err, runlog.ErrNotFound) {
		http.Error(w, "insight not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Health and stats ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": s.orch.Stats().Collect(s.opts.DBPaths...),
		"cost":  s.orch.Cost().Snapshot(),
	})
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest(name + " must be a non-negative integer")
	}
	return n, nil
}
