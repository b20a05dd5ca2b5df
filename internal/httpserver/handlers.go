package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/radiusdt/inapp-report/internal/models"
	"github.com/radiusdt/inapp-report/internal/reporting"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// parseQuery reads the tab and filter parameters shared by the report
// endpoints.
func parseQuery(values url.Values) (reporting.Query, error) {
	tab, err := models.ParseTab(values.Get("tab"))
	if err != nil {
		return reporting.Query{}, err
	}
	spec := models.FilterSpec{
		ServiceOwner: values.Get("serviceOwner"),
		DateRange: models.DateRange{
			From: values.Get("from"),
			To:   values.Get("to"),
		},
		ServiceName:  values.Get("serviceName"),
		Territory:    values.Get("territory"),
		Operator:     values.Get("operator"),
		PartnerName:  values.Get("partnerName"),
		AppServiceID: values.Get("appServiceId"),
	}
	return reporting.Query{Tab: tab, Spec: spec}, nil
}

func (s *Server) readQuery(w http.ResponseWriter, r *http.Request) (reporting.Query, bool) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return reporting.Query{}, false
	}
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		s.handleError(w, r, err)
		return reporting.Query{}, false
	}
	return q, true
}

// ---- Reports ----

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := s.reports.Refresh(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, map[string]interface{}{
		"status":     "refreshed",
		"records":    snap.Len(),
		"skipped":    snap.Skipped,
		"generation": snap.Generation,
		"loadedAt":   snap.LoadedAt,
	})
}

func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	q, ok := s.readQuery(w, r)
	if !ok {
		return
	}

	view, err := s.reports.Hourly(r.Context(), q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, view)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	q, ok := s.readQuery(w, r)
	if !ok {
		return
	}
	changed, err := models.ParseField(r.URL.Query().Get("changed"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	res, err := s.reports.Options(r.Context(), q, changed)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, res)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q, ok := s.readQuery(w, r)
	if !ok {
		return
	}
	serviceID := strings.TrimSpace(r.URL.Query().Get("serviceId"))
	if serviceID == "" {
		s.errorResponse(w, "serviceId is required", http.StatusBadRequest)
		return
	}
	day := r.URL.Query().Get("date")
	if day == "" {
		s.errorResponse(w, "date is required", http.StatusBadRequest)
		return
	}

	points, err := s.reports.Series(r.Context(), q, day, serviceID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, map[string]interface{}{
		"serviceId": serviceID,
		"date":      day,
		"points":    points,
	})
}

func (s *Server) handleDailyCR(w http.ResponseWriter, r *http.Request) {
	q, ok := s.readQuery(w, r)
	if !ok {
		return
	}

	points, err := s.reports.DailyCR(r.Context(), q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, map[string]interface{}{"points": points})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q, ok := s.readQuery(w, r)
	if !ok {
		return
	}

	export, err := s.reports.PrepareExport(r.Context(), q, r.URL.Query().Get("date"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	// Rendered fully before the headers go out so a failure still gets a
	// JSON error.
	var buf bytes.Buffer
	if err := export.WriteTo(&buf); err != nil {
		s.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("export write failed", zap.String("filename", export.Filename), zap.Error(err))
	}
}

// ---- Preferences ----

type preferencesResponse struct {
	Tab    models.Tab        `json:"tab"`
	Filter models.FilterSpec `json:"filter"`
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	tab, err := models.ParseTab(r.URL.Query().Get("tab"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		spec, err := s.reports.LoadPreferences(r.Context(), tab)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		s.jsonResponse(w, preferencesResponse{Tab: tab, Filter: spec})

	case http.MethodPut:
		var spec models.FilterSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		saved, err := s.reports.SavePreferences(r.Context(), tab, spec)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		s.jsonResponse(w, preferencesResponse{Tab: tab, Filter: saved})

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
