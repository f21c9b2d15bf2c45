package api

import (
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/p-n-ai/pai-tracker/internal/realtime"
	"github.com/p-n-ai/pai-tracker/internal/report"
	"github.com/p-n-ai/pai-tracker/internal/session"
	"github.com/p-n-ai/pai-tracker/internal/unit"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("readiness check failed", "check", c.Name, "error", err)
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type openRequest struct {
	Kind      string `json:"kind"`
	RoadmapID string `json:"roadmapId"`
	NodeID    string `json:"nodeId"`
	UserID    string `json:"userId"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := unit.ParseKind(req.Kind)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	if req.RoadmapID == "" || req.NodeID == "" {
		badRequest(w, "roadmapId and nodeId are required")
		return
	}

	view, err := s.sessions.Open(r.Context(), kind, unit.Ref{
		RoadmapID: req.RoadmapID,
		NodeID:    req.NodeID,
		UserID:    req.UserID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.sessions.Get(r.PathValue("id")))
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.sessions.CompleteItem(r.PathValue("id"), r.PathValue("itemId")))
}

type submitRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, r)(s.sessions.Submit(r.PathValue("id"), r.PathValue("itemId"), req.Text))
}

type navigateRequest struct {
	Direction string `json:"direction"`
	Index     int    `json:"index"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decode(w, r, &req) {
		return
	}
	dir, err := session.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respond(w, r)(s.sessions.Navigate(r.PathValue("id"), dir, req.Index))
}

type answerRequest struct {
	Question *int `json:"question"`
	Option   *int `json:"option"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Question == nil || req.Option == nil {
		badRequest(w, "question and option are required")
		return
	}
	s.respond(w, r)(s.sessions.SelectAnswer(r.PathValue("id"), *req.Question, *req.Option))
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.sessions.Advance(r.PathValue("id")))
}

func (s *Server) handleExplanation(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.sessions.RevealExplanation(r.PathValue("id")))
}

func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.sessions.Retake(r.PathValue("id")))
}

// handleWS streams the session's events, starting with its current snapshot.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		writeError(w, r, err)
		return
	}
	s.hub.ServeWS(w, r, id, func() (realtime.Message, error) {
		view, err := s.sessions.Get(id)
		if err != nil {
			return realtime.Message{}, err
		}
		return realtime.NewMessage(id, "snapshot", view)
	})
}

func (s *Server) handleUpsertUnit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "read body: %v", err)
		return
	}
	// Every decode failure is a problem with the submitted document.
	u, err := unit.Decode(raw)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	if err := s.gateway.SaveUnit(r.Context(), u.Key(), u); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("unit upserted", "key", u.Key(), "kind", u.Kind)
	writeJSON(w, http.StatusOK, map[string]string{"key": u.Key()})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	roadmapID := r.PathValue("roadmapId")
	results, err := s.gateway.ListQuizResults(r.Context(), roadmapID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": roadmapID + "-results.xlsx"}))
	if err := report.WriteQuizResults(w, roadmapID, results); err != nil {
		slog.Error("write results workbook failed", "roadmap_id", roadmapID, "error", err)
	}
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request) func(session.View, error) {
	return func(view session.View, err error) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
