package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/perfwatch/perfwatch/pkg/ingest"
	"github.com/perfwatch/perfwatch/pkg/store"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Ingest handlers ---

// handleAddResult ingests one result and triggers report materialization.
func (s *server) handleAddResult(w http.ResponseWriter, r *http.Request) {
	var payload ingest.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid json payload"})

		return
	}

	saved, err := s.ingestOne(w, r, &payload)
	if saved == nil || err != nil {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "result saved",
		"commit": saved.Revision.CommitID,
	})
}

// handleAddResultBulk ingests a batch of results in one request. The
// whole batch is validated before anything is saved, mirroring the
// all-or-nothing contract of the single endpoint's validation step.
func (s *server) handleAddResultBulk(w http.ResponseWriter, r *http.Request) {
	var payloads []ingest.Payload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid json payload"})

		return
	}

	if len(payloads) == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"empty result batch"})

		return
	}

	for i := range payloads {
		if err := payloads[i].Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{err.Error()})

			return
		}
	}

	for i := range payloads {
		if saved, _ := s.ingestOne(w, r, &payloads[i]); saved == nil {
			return
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "results saved",
		"count":  len(payloads),
	})
}

// ingestOne saves one payload and runs the report trigger. On failure the
// response has already been written and nil is returned.
func (s *server) ingestOne(
	w http.ResponseWriter, r *http.Request, payload *ingest.Payload,
) (*ingest.Saved, error) {
	saved, err := s.ingester.SaveResult(r.Context(), payload)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, ingest.ErrUnknownEnvironment) &&
			payload.Validate() == nil {
			status = http.StatusInternalServerError
		}

		writeJSON(w, status, errorResponse{err.Error()})

		return nil, err
	}

	if _, err := s.ingester.MaybeCreateReport(r.Context(), saved); err != nil {
		s.log.WithError(err).
			WithField("commit", saved.Revision.ShortCommitID()).
			Error("Report materialization failed")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"report materialization failed"})

		return nil, err
	}

	return saved, nil
}

// --- Read handlers ---

// changesResponse renders one report for display.
type changesResponse struct {
	Commit      string `json:"commitid"`
	Tag         string `json:"tag,omitempty"`
	Executable  string `json:"executable"`
	Environment string `json:"environment"`
	Summary     string `json:"summary"`
	ColorCode   string `json:"colorcode"`
	Table       any    `json:"table"`
}

// handleGetChanges returns the changes table and summary for one
// (revision, executable, environment). An explicit tre parameter other
// than the configured default forces a rebuild at that depth.
func (s *server) handleGetChanges(w http.ResponseWriter, r *http.Request) {
	commitID := r.URL.Query().Get("rev")
	exeParam := r.URL.Query().Get("exe")
	envName := r.URL.Query().Get("env")

	if commitID == "" || exeParam == "" || envName == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"rev, exe and env are required"})

		return
	}

	exeID, err := strconv.ParseUint(exeParam, 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid executable id"})

		return
	}

	cfg := engineConfig(s.cfg)

	trendDepth := cfg.TrendDepth

	if tre := r.URL.Query().Get("tre"); tre != "" {
		depth, err := strconv.Atoi(tre)
		if err != nil || depth < 2 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"invalid trend depth"})

			return
		}

		trendDepth = depth
	}

	rev, err := s.db.FindRevisionByCommit(r.Context(), commitID)
	if err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"revision not found"})

		return
	}

	exe, err := s.db.GetExecutableByID(r.Context(), uint(exeID))
	if err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"executable not found"})

		return
	}

	env, err := s.db.GetEnvironmentByName(r.Context(), envName)
	if err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"environment not found"})

		return
	}

	rep, err := s.db.GetReport(r.Context(), rev.ID, exe.ID, env.ID)
	if err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"no report for revision"})

		return
	}

	table, err := s.db.ChangesTable(r.Context(), rep, cfg, trendDepth, false)
	if err != nil {
		s.log.WithError(err).Error("Changes table build failed")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"building changes table failed"})

		return
	}

	writeJSON(w, http.StatusOK, changesResponse{
		Commit:      rev.CommitID,
		Tag:         rev.Tag,
		Executable:  exe.Name,
		Environment: env.Name,
		Summary:     rep.Summary,
		ColorCode:   rep.ColorCode,
		Table:       table,
	})
}

// reportItem is one entry of the latest-reports feed.
type reportItem struct {
	Commit      string `json:"commitid"`
	Executable  uint   `json:"executable_id"`
	Environment uint   `json:"environment_id"`
	Summary     string `json:"summary"`
	ColorCode   string `json:"colorcode"`
}

const defaultReportsLimit = 10

// handleListReports returns the most recent report summaries.
func (s *server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportsLimit

	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"invalid limit"})

			return
		}

		limit = parsed
	}

	reports, err := s.db.ListReports(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Listing reports failed")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing reports failed"})

		return
	}

	items := make([]reportItem, 0, len(reports))

	for i := range reports {
		item, err := s.buildReportItem(r, &reports[i])
		if err != nil {
			continue
		}

		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, items)
}

// buildReportItem resolves the revision commit id for one report row.
func (s *server) buildReportItem(
	r *http.Request, rep *store.Report,
) (reportItem, error) {
	rev, err := s.db.GetRevisionByID(r.Context(), rep.RevisionID)
	if err != nil {
		return reportItem{}, err
	}

	return reportItem{
		Commit:      rev.CommitID,
		Executable:  rep.ExecutableID,
		Environment: rep.EnvironmentID,
		Summary:     rep.ItemDescription(),
		ColorCode:   rep.ColorCode,
	}, nil
}
