package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/localdns/localdns/pkg/backend"
	"github.com/localdns/localdns/pkg/model"
	"github.com/localdns/localdns/pkg/version"
)

type handler struct {
	backend backend.Backend
}

func newHandler(b backend.Backend) *handler {
	return &handler{
		backend: b,
	}
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	v := version.Get()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(`{"success": false}`))
	}
}

func (h *handler) listRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.backend.ListRecords()
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, records)
}

func (h *handler) createRecord(w http.ResponseWriter, r *http.Request) {
	var input model.RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := h.backend.CreateRecord(input)
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, record)
}

func (h *handler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := h.backend.GetRecord(id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, record)
}

func (h *handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var patch model.RecordPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := h.backend.UpdateRecord(id, patch)
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, record)
}

func (h *handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.backend.DeleteRecord(id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) recentLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		limit = parsed
	}

	logs, err := h.backend.RecentLogs(limit)
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, logs)
}

func (h *handler) listSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.backend.ListSettings()
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, settings)
}

func (h *handler) updateSetting(w http.ResponseWriter, r *http.Request) {
	var input model.SettingRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	key := mux.Vars(r)["key"]
	if err := h.backend.SetSetting(key, input.Value); err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, model.SettingRequest{Value: input.Value})
}

func recordID(r *http.Request) (uint, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("record id must be a positive integer")
	}
	return uint(id), nil
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalid):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
