package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mivvo/internal/assets"
	"mivvo/internal/report"
	"mivvo/internal/services"
)

type createReportRequest struct {
	Kinds []string `json:"kinds"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	var req createReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r, w, services.Wrap(services.ErrValidation, "api", "create report", "invalid JSON body", err))
		return
	}
	rpt, err := s.orchestrator.CreateReport(r.Context(), ownerID, req.Kinds)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReportView(rpt))
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	reports, err := s.reports.ListByOwner(r.Context(), ownerID)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	views := make([]reportView, 0, len(reports))
	for _, rpt := range reports {
		views = append(views, newReportView(rpt))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	rpt, err := s.orchestrator.Get(r.Context(), chi.URLParam(r, "id"), ownerID)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportView(rpt))
}

// handleUploadAsset accepts the raw file body. The asset kind comes from the
// "kind" query parameter; content validation happens in the asset store.
func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	kind, ok := report.ParseAssetKind(r.URL.Query().Get("kind"))
	if !ok {
		s.writeError(r, w, services.Wrap(services.ErrValidation, "api", "upload asset",
			`kind query parameter must be "image" or "audio"`, nil))
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, assets.MaxAssetBytes+1))
	if err != nil {
		s.writeError(r, w, services.Wrap(services.ErrValidation, "api", "upload asset", "read body", err))
		return
	}
	asset, err := s.orchestrator.AttachAsset(r.Context(), chi.URLParam(r, "id"), ownerID, data, kind)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAssetView(asset))
}

func (s *Server) handleRequestAnalyze(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	reportID := chi.URLParam(r, "id")
	if err := s.orchestrator.RequestAnalyze(r.Context(), reportID, ownerID); err != nil {
		s.writeError(r, w, err)
		return
	}
	rpt, err := s.orchestrator.Get(r.Context(), reportID, ownerID)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newReportView(rpt))
}
