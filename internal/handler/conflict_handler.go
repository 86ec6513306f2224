package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"erp-conflict-engine/internal/domain"
	"erp-conflict-engine/internal/middleware"
	"erp-conflict-engine/internal/service"
	"erp-conflict-engine/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type ConflictHandler struct {
	conflictService *service.ConflictService
	validator       *validator.Validate
	retentionDays   int
}

func NewConflictHandler(conflictService *service.ConflictService, retentionDays int) *ConflictHandler {
	return &ConflictHandler{
		conflictService: conflictService,
		validator:       validator.New(),
		retentionDays:   retentionDays,
	}
}

func (h *ConflictHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.conflictService.Active())
}

func (h *ConflictHandler) Get(w http.ResponseWriter, r *http.Request) {
	conflictID := mux.Vars(r)["id"]

	conflict, err := h.conflictService.Get(r.Context(), conflictID)
	if err != nil {
		response.NotFound(w, "conflict not found")
		return
	}

	response.Success(w, conflict)
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	conflictID := mux.Vars(r)["id"]

	var req domain.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	resolvedBy := middleware.GetOperatorID(r)

	winner, err := h.conflictService.Resolve(r.Context(), conflictID, req.Strategy, req.ManualValues, resolvedBy, req.Notes)
	if err != nil {
		var notFound *service.ConflictNotFoundError
		var invalid *service.InvalidResolutionError
		var badType *service.UnsupportedValueTypeError
		switch {
		case errors.As(err, &notFound):
			response.NotFound(w, err.Error())
		case errors.As(err, &invalid), errors.As(err, &badType):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, err.Error())
		}
		return
	}

	response.Success(w, map[string]interface{}{
		"conflict_id":     conflictID,
		"resolved_record": winner,
	})
}

func (h *ConflictHandler) History(w http.ResponseWriter, r *http.Request) {
	recordType := r.URL.Query().Get("record_type")
	severity := domain.ConflictSeverity(r.URL.Query().Get("severity"))

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			response.BadRequest(w, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	conflicts, err := h.conflictService.History(r.Context(), recordType, severity, limit)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, conflicts)
}

func (h *ConflictHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.conflictService.Statistics())
}

func (h *ConflictHandler) Expire(w http.ResponseWriter, r *http.Request) {
	olderThanDays := h.retentionDays
	if param := r.URL.Query().Get("older_than_days"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 {
			response.BadRequest(w, "invalid older_than_days parameter")
			return
		}
		olderThanDays = parsed
	}

	removed := h.conflictService.ExpireOld(olderThanDays)
	response.Success(w, map[string]int{"removed": removed})
}
