package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ultraseeker/internal/config"
	"ultraseeker/internal/health"
	"ultraseeker/internal/history"
	"ultraseeker/internal/model"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
	SetSensitivity(x float64)
	Sensitivity() float64
	Statistics() model.Statistics
	CurrentSummary() model.Summary
}

type Server struct {
	cfg     *config.Manager
	health  *health.Store
	history *history.Store
	engine  EngineControl
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string             `json:"status"`
	Time       string             `json:"time"`
	Version    string             `json:"version"`
	ConfigPath string             `json:"config_path"`
	Modalities []string           `json:"modalities"`
	Ingest     ingestStatus       `json:"ingest"`
	API        apiStatus          `json:"api"`
	Engine     engineStatusDetail `json:"engine"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	Kafka     bool `json:"kafka"`
	TCPStream bool `json:"tcp_stream"`
	FileTail  bool `json:"file_tail"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type engineStatusDetail struct {
	Cadence       string  `json:"cadence"`
	SummaryWindow string  `json:"summary_window"`
	Sensitivity   float64 `json:"sensitivity"`
}

func Start(ctx context.Context, cfg *config.Manager, healthStore *health.Store, historyStore *history.Store, engine EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		health:  healthStore,
		history: historyStore,
		engine:  engine,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", server.handleHealthz)
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/assessment", server.handleAssessment)
	mux.HandleFunc("/assessments", server.handleAssessments)
	mux.HandleFunc("/detections", server.handleDetections)
	mux.HandleFunc("/statistics", server.handleStatistics)
	mux.HandleFunc("/modalities", server.handleModalities)
	mux.HandleFunc("/config/sensitivity", server.handleSensitivity)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.HandleFunc("/admin/restart", server.handleRestart)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	modalities := make([]string, 0, 3)
	for _, m := range cfg.Modalities.Enabled() {
		modalities = append(modalities, string(m))
	}
	sensitivity := cfg.Engine.Sensitivity
	if s.engine != nil {
		sensitivity = s.engine.Sensitivity()
	}
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Modalities: modalities,
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Engine: engineStatusDetail{
			Cadence:       cfg.Engine.Cadence.String(),
			SummaryWindow: cfg.Engine.SummaryWindow.String(),
			Sensitivity:   sensitivity,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if latest, ok := s.history.Latest(); ok {
		writeJSON(w, http.StatusOK, latest)
		return
	}
	// no cycle has run yet; summarize the (empty) ledger directly
	if s.engine != nil {
		writeJSON(w, http.StatusOK, model.Assessment{
			Timestamp: time.Now().UTC(),
			Summary:   s.engine.CurrentSummary(),
		})
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleAssessments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Assessment
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.history.Since(ts)
	} else {
		list = s.history.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": list,
		"count":       len(list),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		since = ts
	}
	detections := make([]model.Detection, 0)
	for _, a := range s.history.List(0) {
		for _, d := range a.Detections {
			if !since.IsZero() && d.Timestamp.Before(since) {
				continue
			}
			detections = append(detections, d)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detections": detections,
		"count":      len(detections),
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Statistics())
}

func (s *Server) handleModalities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	all := s.health.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"modalities": all,
		"count":      len(all),
	})
}

func (s *Server) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		value := s.cfg.Get().Engine.Sensitivity
		if s.engine != nil {
			value = s.engine.Sensitivity()
		}
		writeJSON(w, http.StatusOK, map[string]any{"sensitivity": value})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req struct {
			Sensitivity float64 `json:"sensitivity"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if s.engine != nil {
			s.engine.SetSensitivity(req.Sensitivity)
		}
		applied := req.Sensitivity
		if s.engine != nil {
			applied = s.engine.Sensitivity()
		}
		current := s.cfg.Get()
		next := *current
		next.Engine.Sensitivity = applied
		if err := s.cfg.Update(&next); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if s.engine != nil {
			s.engine.UpdateConfig(&next)
		}
		writeJSON(w, http.StatusOK, map[string]any{"sensitivity": applied})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := req.Target
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.history != nil {
			s.history.Clear()
		}
		if s.health != nil {
			s.health.Clear()
		}
	case "history", "assessments":
		if s.history != nil {
			s.history.Clear()
		}
	case "health", "modalities":
		if s.health != nil {
			s.health.Clear()
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine != nil {
		s.engine.Reset()
	}
	if s.history != nil {
		s.history.Clear()
	}
	if s.health != nil {
		s.health.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
