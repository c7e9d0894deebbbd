package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"Go2NetPulse/internal/config"
	"Go2NetPulse/internal/engine/capture"
	"Go2NetPulse/internal/export"
	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/model"
	"Go2NetPulse/internal/query"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Controller changes the capture run state.
type Controller interface {
	Start(device string) error
	Stop()
	Reset() error
}

// DeviceScanner runs discovery scans and remembers the latest result.
type DeviceScanner interface {
	Scan(ctx context.Context, ipRange string) ([]model.Device, error)
	Devices() []model.Device
}

// Deps holds the dependencies of the HTTP handlers.
type Deps struct {
	Controller Controller
	Querier    query.Querier
	Scanner    DeviceScanner
	Gatherer   prometheus.Gatherer
	Config     config.APIConfig
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	Deps
	log *logrus.Entry
	now func() time.Time
}

// NewRouter builds the HTTP routes of the monitor.
func NewRouter(deps Deps) *mux.Router {
	h := &APIHandler{Deps: deps, log: logging.For("api"), now: time.Now}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/start", h.startHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/stop", h.stopHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/reset", h.resetHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/stats", h.statsHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/protocol-dist", h.protocolDistHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/top-talkers", h.topTalkersHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/packets", h.packetsHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/scan", h.scanHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/devices", h.devicesHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/export", h.exportHandler).Methods(http.MethodGet, http.MethodOptions)
	api.Use(mux.CORSMethodMiddleware(api))
	api.Use(corsMiddleware(deps.Config.CORSOrigin))

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if deps.Config.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(deps.Config.StaticDir)))
	}
	return r
}

// corsMiddleware sets the allowed origin and answers preflight requests.
func corsMiddleware(origin string) mux.MiddlewareFunc {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type startRequest struct {
	Interface string `json:"interface"`
}

type scanRequest struct {
	Range string `json:"range"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *APIHandler) startHandler(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err))
		return
	}
	if req.Interface == "" {
		req.Interface = r.URL.Query().Get("interface")
	}

	if err := h.Controller.Start(req.Interface); err != nil {
		h.log.WithError(err).Error("Failed to start capture")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "started", Message: "Packet capture started"})
}

func (h *APIHandler) stopHandler(w http.ResponseWriter, r *http.Request) {
	h.Controller.Stop()
	writeJSON(w, http.StatusOK, statusResponse{Status: "stopped", Message: "Packet capture stopped"})
}

func (h *APIHandler) resetHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.Reset(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, capture.ErrCaptureActive) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "reset", Message: "Data reset successfully"})
}

func (h *APIHandler) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Querier.Stats())
}

func (h *APIHandler) protocolDistHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Querier.ProtocolDistribution())
}

func (h *APIHandler) topTalkersHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, query.DefaultTopTalkers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.Querier.TopTalkers(limit))
}

func (h *APIHandler) packetsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, query.DefaultRecentPackets)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.Querier.RecentPackets(limit))
}

func (h *APIHandler) scanHandler(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err))
		return
	}
	if req.Range == "" {
		req.Range = r.URL.Query().Get("range")
	}

	devices, err := h.Scanner.Scan(r.Context(), req.Range)
	if err != nil {
		h.log.WithError(err).Error("Network scan failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": devices, "count": len(devices)})
}

func (h *APIHandler) devicesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": h.Scanner.Devices()})
}

func (h *APIHandler) exportHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := export.WriteCSV(&buf, h.Querier.AllPackets())
	if errors.Is(err, export.ErrNoData) {
		writeError(w, http.StatusBadRequest, "No data to export")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to export packets: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(h.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// limitParam parses the optional positive "limit" query parameter.
func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q: must be a positive integer", raw)
	}
	return n, nil
}

// decodeOptional decodes a JSON body if one was sent.
func decodeOptional(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
