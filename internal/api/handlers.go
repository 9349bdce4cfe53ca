package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ghalamif/sensorflow/internal/app/query"
	"github.com/ghalamif/sensorflow/internal/domain"
)

type handler struct {
	svc    *query.Service
	health Pinger
	log    *slog.Logger
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.log.Warn("health_check_failed", "err", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) all(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.All(r.Context(), 0)
	h.readings(w, out, err)
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Latest(r.Context(), 0)
	h.readings(w, out, err)
}

func (h *handler) bySensor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sensorId"]
	out, err := h.svc.BySensor(r.Context(), id, 0)
	if errors.Is(err, query.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data found for sensor "+id)
		return
	}
	h.readings(w, out, err)
}

func (h *handler) byType(w http.ResponseWriter, r *http.Request) {
	typ, err := domain.ParseSensorType(mux.Vars(r)["sensorType"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.svc.ByType(r.Context(), typ, 0)
	if errors.Is(err, query.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data found for sensor type "+string(typ))
		return
	}
	h.readings(w, out, err)
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req query.SummaryRequest

	if s := q.Get("sensorType"); s != "" {
		typ, err := domain.ParseSensorType(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Type = &typ
	}
	var err error
	if req.Page, err = intParam(q.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if req.PageSize, err = intParam(q.Get("pageSize")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pageSize")
		return
	}

	page, err := h.svc.Summary(r.Context(), req)
	if err != nil {
		h.internal(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) topErrors(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.TopErrors(r.Context(), 0)
	if err != nil {
		h.internal(w, "top_errors", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) readings(w http.ResponseWriter, rs []domain.Reading, err error) {
	if err != nil {
		h.internal(w, "query_readings", err)
		return
	}
	out := make([]domain.ReadingMessage, 0, len(rs))
	for i := range rs {
		out = append(out, domain.NewReadingMessage(&rs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) internal(w http.ResponseWriter, op string, err error) {
	h.log.Error("api_query_failed", "op", op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// writeJSON encodes v before writing the header. A value that fails to encode is answered
// with a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
