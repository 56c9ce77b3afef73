package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"fitlife/db"
	"fitlife/ml"
	"fitlife/monitoring"
	"fitlife/service"
)

// PredictionService is the part of service.Service the API needs.
type PredictionService interface {
	Schema() (ml.Schema, error)
	PredictWithConfidence(v ml.FeatureVector) (ml.PredictionResult, error)
	ModelInfo() (service.Info, error)
}

// PredictionStore records served predictions. It may be nil.
type PredictionStore interface {
	RecordPrediction(ctx context.Context, rec db.PredictionRecord) error
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error)
}

// MissingFieldError reports a required request field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "Missing required field: " + e.Field
}

var errInvalidBody = errors.New("invalid request body")

// PredictRequest is the body of POST /api/predict. Distance defaults to 0.
type PredictRequest struct {
	Duration *float64 `json:"duration"`
	Distance *float64 `json:"distance"`
	Calories *float64 `json:"calories"`
}

// Validate reports the first missing required field.
func (r PredictRequest) Validate() error {
	if r.Duration == nil {
		return &MissingFieldError{Field: "duration"}
	}
	if r.Calories == nil {
		return &MissingFieldError{Field: "calories"}
	}
	return nil
}

// Vector orders the request values like the features of schema.
func (r PredictRequest) Vector(schema ml.Schema) (ml.FeatureVector, error) {
	distance := 0.0
	if r.Distance != nil {
		distance = *r.Distance
	}
	values := map[string]float64{"duration": *r.Duration, "distance": distance, "calories": *r.Calories}
	v := make(ml.FeatureVector, 0, schema.FeatureCount())
	for _, name := range schema.FeatureNames() {
		value, ok := values[name]
		if !ok {
			return nil, errors.Wrapf(ml.ErrSchemaMismatch, "model expects feature %q", name)
		}
		v = append(v, value)
	}
	return v, nil
}

// PredictResponse is the body of a successful prediction.
type PredictResponse struct {
	PredictedActivity string  `json:"predictedActivity"`
	Confidence        float64 `json:"confidence"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API serves the prediction endpoints.
type API struct {
	name    string
	service PredictionService
	store   PredictionStore
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// APIOption configures an API.
type APIOption func(*API)

// WithMetrics shares m instead of a private collector.
func WithMetrics(m *monitoring.Metrics) APIOption {
	return func(a *API) {
		if m != nil {
			a.metrics = m
		}
	}
}

// NewAPI returns the handlers for svc. store may be nil to disable prediction history.
func NewAPI(name string, svc PredictionService, store PredictionStore, logger *zap.Logger, opts ...APIOption) *API {
	a := &API{name: name, service: svc, store: store, metrics: monitoring.NewMetrics(nil), logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register mounts the request/response endpoints on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("GET /api/model", a.handleModel)
	mux.HandleFunc("GET /api/predictions", a.handlePredictions)
	mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	mux.HandleFunc("GET /metrics", a.handlePrometheus)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": a.name})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.metrics.RecordFailure(http.StatusRequestEntityTooLarge)
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		a.metrics.RecordFailure(http.StatusBadRequest)
		respondError(w, http.StatusBadRequest, errInvalidBody.Error())
		return
	}
	resp, err := a.predict(r.Context(), req)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// predict validates req, runs the model and records the result.
func (a *API) predict(ctx context.Context, req PredictRequest) (PredictResponse, error) {
	start := time.Now()
	resp, err := a.runPrediction(ctx, req)
	if err != nil {
		a.metrics.RecordFailure(statusFor(err))
		return resp, err
	}
	a.metrics.RecordPrediction(resp.PredictedActivity, time.Since(start))
	return resp, nil
}

func (a *API) runPrediction(ctx context.Context, req PredictRequest) (PredictResponse, error) {
	if err := req.Validate(); err != nil {
		return PredictResponse{}, err
	}
	schema, err := a.service.Schema()
	if err != nil {
		return PredictResponse{}, err
	}
	v, err := req.Vector(schema)
	if err != nil {
		return PredictResponse{}, err
	}
	res, err := a.service.PredictWithConfidence(v)
	if err != nil {
		return PredictResponse{}, err
	}
	if a.store != nil {
		rec := db.PredictionRecord{
			RequestID:  GetRequestID(ctx),
			Duration:   *req.Duration,
			Calories:   *req.Calories,
			Label:      res.Label,
			Confidence: res.Confidence,
		}
		if req.Distance != nil {
			rec.Distance = *req.Distance
		}
		if err := a.store.RecordPrediction(ctx, rec); err != nil {
			a.logger.Warn("record prediction", zap.String("request_id", rec.RequestID), zap.Error(err))
		}
	}
	return PredictResponse{PredictedActivity: res.Label, Confidence: res.Confidence}, nil
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	info, err := a.service.ModelInfo()
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (a *API) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		respondError(w, http.StatusServiceUnavailable, "prediction history disabled")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = l
	}
	records, err := a.store.RecentPredictions(r.Context(), limit)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"predictions": records, "count": len(records)})
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.metrics.Snapshot())
}

func (a *API) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := a.metrics.WritePrometheus(w); err != nil {
		a.logger.Debug("write metrics", zap.Error(err))
	}
}

// statusFor maps errors from the core to HTTP status codes.
func statusFor(err error) int {
	var missing *MissingFieldError
	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrServiceNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, ml.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides internal failures from clients.
func errorMessage(err error) (int, string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return status, "internal server error"
	}
	return status, err.Error()
}

func (a *API) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorMessage(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
	}
	respondError(w, status, msg)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
