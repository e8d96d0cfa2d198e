package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"concierge/internal/allocation/service"
	apperrors "concierge/pkg/errors"
	httputil "concierge/pkg/http"
	"concierge/pkg/logger"
	"concierge/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type RequestHandler struct {
	service service.AllocationService
	log     *logger.Logger
}

func NewRequestHandler(service service.AllocationService, log *logger.Logger) *RequestHandler {
	return &RequestHandler{
		service: service,
		log:     log,
	}
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	query := r.URL.Query()
	page, err := h.service.List(r.Context(), &model.RequestQuery{
		Status:          query.Get("status"),
		EstablishmentID: query.Get("establishment_id"),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WriteSuccess(w, page); err != nil {
		h.log.Error("failed to write success response", "handler", "List", "operation", "WriteSuccess", "error", err)
	}
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	detail, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}

	if err := httputil.WriteSuccess(w, detail); err != nil {
		h.log.Error("failed to write success response", "handler", "Get", "operation", "WriteSuccess", "error", err)
	}
}

func (h *RequestHandler) Accept(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in model.AcceptInput
	if err := decodeOptional(r, &in); err != nil {
		h.writeError(w, "Accept", err)
		return
	}

	if err := h.service.Accept(r.Context(), ps.ByName("id"), &in); err != nil {
		h.writeError(w, "Accept", err)
		return
	}

	if err := httputil.WriteOK(w); err != nil {
		h.log.Error("failed to write ok response", "handler", "Accept", "operation", "WriteOK", "error", err)
	}
}

func (h *RequestHandler) Refuse(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in model.RefuseInput
	if err := decodeOptional(r, &in); err != nil {
		h.writeError(w, "Refuse", err)
		return
	}

	if err := h.service.Refuse(r.Context(), ps.ByName("id"), &in); err != nil {
		h.writeError(w, "Refuse", err)
		return
	}

	if err := httputil.WriteOK(w); err != nil {
		h.log.Error("failed to write ok response", "handler", "Refuse", "operation", "WriteOK", "error", err)
	}
}

func (h *RequestHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

// decodeOptional accepts an empty body as the zero value.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.InvalidInput("Invalid request body")
	}
	return nil
}

func (h *RequestHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/requests", h.List)
	router.GET("/api/v1/requests/:id", h.Get)
	router.POST("/api/v1/requests/:id/accept", h.Accept)
	router.POST("/api/v1/requests/:id/refuse", h.Refuse)
}
