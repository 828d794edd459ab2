package devices

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/platform/httpx"
	"github.com/fleetgate/fleetgate/internal/shared"
)

// Handler wires HTTP endpoints for the device module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a device handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers device routes; callers mount them behind authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/devices", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{deviceID}", h.handleGet)
		r.Put("/{deviceID}", h.handleUpdate)
		r.Delete("/{deviceID}", h.handleDelete)
	})
}

type createDeviceRequest struct {
	IMEI            string  `json:"imei" validate:"required,min=10,max=20"`
	Model           string  `json:"model" validate:"required"`
	FirmwareVersion string  `json:"firmware_version"`
	SIMNumber       string  `json:"sim_number"`
	TenantID        *string `json:"tenant_id"`
	RegisteredBySMS bool    `json:"registered_by_sms"`
	InstallerPhone  string  `json:"installer_phone"`
}

type updateDeviceRequest struct {
	IMEI            string `json:"imei" validate:"omitempty,min=10,max=20"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	SIMNumber       string `json:"sim_number"`
	Status          string `json:"status" validate:"omitempty,oneof=REGISTERED ACTIVE INACTIVE MAINTENANCE DECOMMISSIONED"`
	InstallerPhone  string `json:"installer_phone"`
}

type listDevicesResponse struct {
	Devices    []Device          `json:"devices"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	var req createDeviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	tenantID, err := parseOptionalUUID(req.TenantID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid tenant_id")
		return
	}

	device, err := h.service.Create(r.Context(), principal.UserID, CreateInput{
		IMEI:            req.IMEI,
		Model:           req.Model,
		FirmwareVersion: req.FirmwareVersion,
		SIMNumber:       req.SIMNumber,
		TenantID:        tenantID,
		RegisteredBySMS: req.RegisteredBySMS,
		InstallerPhone:  req.InstallerPhone,
	})
	if err != nil {
		h.logger.Warn("device create", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, device)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid device id")
		return
	}
	device, err := h.service.Get(r.Context(), principal.UserID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, device)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	page, perPage := shared.PageParams(r)
	filter := ListFilter{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
		IMEI:   r.URL.Query().Get("imei"),
	}
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid tenant_id")
			return
		}
		filter.TenantID = &id
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := Status(raw)
		filter.Status = &st
	}

	devices, total, err := h.service.List(r.Context(), principal.UserID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listDevicesResponse{
		Devices:    devices,
		Pagination: shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid device id")
		return
	}
	var req updateDeviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	device, err := h.service.Update(r.Context(), principal.UserID, id, UpdateInput{
		IMEI:            req.IMEI,
		Model:           req.Model,
		FirmwareVersion: req.FirmwareVersion,
		SIMNumber:       req.SIMNumber,
		Status:          Status(req.Status),
		InstallerPhone:  req.InstallerPhone,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, device)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid device id")
		return
	}
	if err := h.service.Delete(r.Context(), principal.UserID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
