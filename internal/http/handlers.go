package http

import (
	"net/http"
	"time"

	"previsioni/internal/core"
	"previsioni/internal/log"
)

type predictRequest struct {
	Description string `json:"description"`
}

type predictResponse struct {
	PredictedCategory  string  `json:"predicted_category"`
	Confidence         float64 `json:"confidence"`
	NearestCategory    string  `json:"nearest_category"`
	NearestDescription string  `json:"nearest_description,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.classifier.Predict(r.Context(), req.Description)
	if err != nil {
		writeServiceError(w, r, log.OpPredict, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{
		PredictedCategory:  p.Category,
		Confidence:         p.Confidence,
		NearestCategory:    p.NearestCategory,
		NearestDescription: p.NearestDescription,
	})
}

type exampleFields struct {
	Description string `json:"description"`
	Category    string `json:"category"`
}

// addExampleRequest accepts the fields either at the top level or wrapped
// in new_data.
type addExampleRequest struct {
	exampleFields
	NewData *exampleFields `json:"new_data,omitempty"`
}

type addExampleResponse struct {
	ID                    int64  `json:"id"`
	Description           string `json:"description"`
	Category              string `json:"category"`
	NormalizedDescription string `json:"normalized_description"`
	CorpusVersion         int64  `json:"corpus_version"`
}

func (s *Server) handleAddExample(w http.ResponseWriter, r *http.Request) {
	var req addExampleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	fields := req.exampleFields
	if req.NewData != nil {
		fields = *req.NewData
	}

	ex, version, err := s.classifier.AddExample(r.Context(), fields.Description, fields.Category)
	if err != nil {
		writeServiceError(w, r, log.OpAppend, err)
		return
	}
	writeJSON(w, http.StatusCreated, addExampleResponse{
		ID:                    ex.ID,
		Description:           ex.Description,
		Category:              ex.Category,
		NormalizedDescription: ex.NormalizedDescription,
		CorpusVersion:         version,
	})
}

type dayJSON struct {
	Date             string  `json:"date"`
	ForecastedAmount float64 `json:"forecasted_amount"`
}

type forecastResponse struct {
	OwnerID           string             `json:"owner_id"`
	GeneratedAt       time.Time          `json:"generated_at"`
	Model             string             `json:"model"`
	FitError          string             `json:"fit_error,omitempty"`
	PerDay            []dayJSON          `json:"per_day"`
	HorizonTotal      float64            `json:"horizon_total"`
	PerCategoryTotals map[string]float64 `json:"per_category_totals"`
	SnapshotID        int64              `json:"snapshot_id,omitempty"`
}

func newForecastResponse(snap core.ForecastSnapshot) forecastResponse {
	resp := forecastResponse{
		OwnerID:           snap.OwnerID,
		GeneratedAt:       snap.CreatedAt.UTC(),
		Model:             snap.Model,
		FitError:          snap.FitError,
		PerDay:            make([]dayJSON, 0, len(snap.PerDay)),
		HorizonTotal:      round2(snap.HorizonTotal),
		PerCategoryTotals: make(map[string]float64, len(snap.PerCategoryTotals)),
		SnapshotID:        snap.ID,
	}
	for _, d := range snap.PerDay {
		resp.PerDay = append(resp.PerDay, dayJSON{Date: d.Date.String(), ForecastedAmount: round2(d.Amount)})
	}
	for cat, total := range snap.PerCategoryTotals {
		resp.PerCategoryTotals[cat] = total.Float64()
	}
	return resp
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	res, err := s.forecaster.Forecast(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, log.OpForecast, err)
		return
	}
	writeJSON(w, http.StatusOK, newForecastResponse(res.Snapshot(owner, time.Now().UTC())))
}

func (s *Server) handleLatestForecast(w http.ResponseWriter, r *http.Request) {
	snap, err := s.forecaster.Latest(r.Context(), ownerID(r))
	if err != nil {
		writeServiceError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newForecastResponse(snap))
}

type refreshResponse struct {
	Status   string            `json:"status"`
	Forecast *forecastResponse `json:"forecast,omitempty"`
}

// handleRefreshForecast answers 202 when the refresh was queued and 200 with
// the new snapshot when it ran inline.
func (s *Server) handleRefreshForecast(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	queued, err := s.forecaster.RequestRefresh(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, log.OpRefresh, err)
		return
	}
	if queued {
		writeJSON(w, http.StatusAccepted, refreshResponse{Status: "queued"})
		return
	}

	snap, err := s.forecaster.Latest(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, log.OpRead, err)
		return
	}
	resp := newForecastResponse(snap)
	writeJSON(w, http.StatusOK, refreshResponse{Status: "refreshed", Forecast: &resp})
}
