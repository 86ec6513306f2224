package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"erp-conflict-engine/internal/domain"
	"erp-conflict-engine/internal/repository"
	"erp-conflict-engine/internal/service"
	"erp-conflict-engine/pkg/response"

	"github.com/gorilla/mux"
)

type RecordHandler struct {
	recordService *service.RecordService
}

func NewRecordHandler(recordService *service.RecordService) *RecordHandler {
	return &RecordHandler{recordService: recordService}
}

// Save writes a record version. A lost optimistic-concurrency race
// answers 409 with the detected conflict and the server's version, so
// the caller can resolve instead of blindly retrying.
func (h *RecordHandler) Save(w http.ResponseWriter, r *http.Request) {
	recordID := mux.Vars(r)["id"]

	var record domain.VersionedRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	record.ID = recordID
	record.Revision = r.URL.Query().Get("rev")

	if record.RecordType == "" {
		response.BadRequest(w, "record_type is required")
		return
	}

	saved, conflict, err := h.recordService.Save(r.Context(), &record)
	if err != nil {
		var cc *domain.ConcurrencyConflictError
		if errors.As(err, &cc) {
			response.Conflict(w, map[string]interface{}{
				"conflict":      conflict,
				"server_record": cc.ServerRecord,
			})
			return
		}
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, map[string]interface{}{
		"record": saved,
		"rev":    saved.Revision,
	})
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	recordID := mux.Vars(r)["id"]

	record, err := h.recordService.Fetch(r.Context(), recordID)
	if err != nil {
		if repository.IsNotFound(err) {
			response.NotFound(w, "record not found")
			return
		}
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, map[string]interface{}{
		"record": record,
		"rev":    record.Revision,
	})
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	recordType := r.URL.Query().Get("record_type")

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			response.BadRequest(w, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	records, err := h.recordService.List(r.Context(), recordType, limit)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, records)
}

// Verify compares a caller-held local copy against the server version
// and reports (and registers) any divergence.
func (h *RecordHandler) Verify(w http.ResponseWriter, r *http.Request) {
	recordID := mux.Vars(r)["id"]

	var local domain.VersionedRecord
	if err := json.NewDecoder(r.Body).Decode(&local); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	local.ID = recordID

	server, conflict, err := h.recordService.FetchAndCompare(r.Context(), recordID, &local)
	if err != nil {
		if repository.IsNotFound(err) {
			response.NotFound(w, "record not found")
			return
		}
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, map[string]interface{}{
		"in_sync":       conflict == nil,
		"server_record": server,
		"conflict":      conflict,
	})
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	recordID := mux.Vars(r)["id"]

	conflict, err := h.recordService.Delete(r.Context(), recordID, nil)
	if err != nil {
		var cc *domain.ConcurrencyConflictError
		if errors.As(err, &cc) {
			response.Conflict(w, map[string]interface{}{
				"conflict":      conflict,
				"server_record": cc.ServerRecord,
			})
			return
		}
		if repository.IsNotFound(err) {
			response.NotFound(w, "record not found")
			return
		}
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, map[string]string{"deleted": recordID})
}
