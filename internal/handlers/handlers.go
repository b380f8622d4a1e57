package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/blight-api/internal/framelog"
	"github.com/Brownie44l1/blight-api/internal/model"
	"github.com/Brownie44l1/blight-api/internal/pipeline"
	"github.com/Brownie44l1/blight-api/internal/store"
)

const (
	maxUploadSize = 10 << 20

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	lowConfidenceLabel = "low_confidence"
)

// PredictionResponse is the body of a successful /predict call. TopLabel is
// only set for low-confidence results.
type PredictionResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	TopLabel   string  `json:"top_label,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	pipeline *pipeline.Pipeline
	history  store.Store
	frames   *framelog.Saver
	logger   logrus.FieldLogger
}

// NewHandler wires the HTTP surface. frames may be nil to disable saving
// debug frames for uploads.
func NewHandler(p *pipeline.Pipeline, history store.Store, frames *framelog.Saver, logger logrus.FieldLogger) *Handler {
	return &Handler{
		pipeline: p,
		history:  history,
		frames:   frames,
		logger:   logger,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/predict", h.Predict)
	mux.HandleFunc("/labels", h.Labels)
	mux.HandleFunc("/history", h.History)
	return h.recoverer(enableCORS(mux))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoverer turns a panic in any handler into a 500 JSON response.
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.WithFields(logrus.Fields{"path": r.URL.Path, "panic": rec}).Error("Handler panicked")
				writeError(w, http.StatusInternalServerError, fmt.Sprint(rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Labels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, model.Catalog(h.pipeline.Labels()))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read prediction history")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// upload extracts the "file" part. It returns a client-facing message when
// the request has no usable file.
func upload(r *http.Request) (data []byte, filename string, msg string, err error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, "", "No file part in request", nil
	}

	// Parts with an empty filename are parsed as plain values.
	if _, ok := r.MultipartForm.File["file"]; !ok {
		if _, ok := r.MultipartForm.Value["file"]; ok {
			return nil, "", "No selected file", nil
		}
		return nil, "", "No file part in request", nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, "", "No selected file", nil
	}

	data, err = io.ReadAll(file)
	if err != nil {
		return nil, "", "", fmt.Errorf("read upload: %w", err)
	}
	return data, header.Filename, "", nil
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := uuid.New()
	w.Header().Set("X-Request-ID", id.String())
	log := h.logger.WithField("request_id", id)

	data, filename, msg, err := upload(r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		log.WithError(err).Error("Failed to read upload")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).WithField("filename", filename).Info("Upload is not an image")
		writeError(w, http.StatusBadRequest, "File could not be decoded as an image")
		return
	}

	log.WithFields(logrus.Fields{
		"filename": filename,
		"format":   format,
		"size":     len(data),
		"width":    img.Bounds().Dx(),
		"height":   img.Bounds().Dy(),
	}).Debug("Received image")

	res, err := h.pipeline.Evaluate(r.Context(), img)
	if err != nil {
		log.WithError(err).Error("Prediction error")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := response(res.Decision)
	log.WithFields(logrus.Fields{
		"label":      resp.Label,
		"confidence": resp.Confidence,
		"leaf_ratio": res.LeafRatio,
	}).Info("Prediction served")

	h.saveFrame(res.Decision, img)
	h.record(log, store.Record{
		ID:         id,
		Filename:   filename,
		Outcome:    res.Decision.Kind.String(),
		Label:      resp.Label,
		Confidence: resp.Confidence,
		LeafRatio:  res.LeafRatio,
		Fallback:   res.Fallback,
		CreatedAt:  time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, resp)
}

func response(d pipeline.Decision) PredictionResponse {
	switch d.Kind {
	case pipeline.NoLeaf:
		return PredictionResponse{Label: model.NoLeafLabel, Confidence: 1.0}
	case pipeline.LowConfidence:
		return PredictionResponse{Label: lowConfidenceLabel, Confidence: d.Confidence, TopLabel: d.Label}
	default:
		return PredictionResponse{Label: d.Label, Confidence: d.Confidence}
	}
}

func (h *Handler) saveFrame(d pipeline.Decision, img image.Image) {
	if h.frames == nil {
		return
	}
	switch d.Kind {
	case pipeline.NoLeaf:
		h.frames.SaveNoLeaf(h.frames.Next(), img)
	case pipeline.LowConfidence:
		h.frames.SaveLowConfidence(h.frames.Next(), d.Label, d.Confidence, img)
	}
}

// record stores the prediction without tying it to the request lifetime.
func (h *Handler) record(log logrus.FieldLogger, rec store.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.history.Add(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("Failed to record prediction")
	}
}
