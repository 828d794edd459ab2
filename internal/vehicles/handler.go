package vehicles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/platform/httpx"
	"github.com/fleetgate/fleetgate/internal/shared"
)

// Handler wires HTTP endpoints for the vehicle module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a vehicle handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers vehicle routes; callers mount them behind authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/vehicles", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{vehicleID}", h.handleGet)
		r.Put("/{vehicleID}", h.handleUpdate)
		r.Delete("/{vehicleID}", h.handleDelete)
	})
}

type createVehicleRequest struct {
	PlateNumber string   `json:"plate_number" validate:"required,min=2,max=16"`
	VIN         string   `json:"vin" validate:"omitempty,len=17"`
	Make        string   `json:"make"`
	Model       string   `json:"model"`
	Year        int      `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	Type        string   `json:"type" validate:"omitempty,oneof=CAR TRUCK VAN MOTORCYCLE BUS OTHER"`
	TenantID    *string  `json:"tenant_id"`
	OdometerKM  float64  `json:"odometer_km" validate:"gte=0"`
}

type updateVehicleRequest struct {
	PlateNumber string   `json:"plate_number" validate:"omitempty,min=2,max=16"`
	VIN         string   `json:"vin" validate:"omitempty,len=17"`
	Make        string   `json:"make"`
	Model       string   `json:"model"`
	Year        int      `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	Type        string   `json:"type" validate:"omitempty,oneof=CAR TRUCK VAN MOTORCYCLE BUS OTHER"`
	Status      string   `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE MAINTENANCE RETIRED"`
	OdometerKM  *float64 `json:"odometer_km" validate:"omitempty,gte=0"`
}

type listVehiclesResponse struct {
	Vehicles   []Vehicle         `json:"vehicles"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	var req createVehicleRequest
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

	vehicle, err := h.service.Create(r.Context(), principal.UserID, CreateInput{
		PlateNumber: req.PlateNumber,
		VIN:         req.VIN,
		Make:        req.Make,
		Model:       req.Model,
		Year:        req.Year,
		Type:        VehicleType(req.Type),
		TenantID:    tenantID,
		OdometerKM:  req.OdometerKM,
	})
	if err != nil {
		h.logger.Warn("vehicle create", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vehicle)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "vehicleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	vehicle, err := h.service.Get(r.Context(), principal.UserID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vehicle)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	page, perPage := shared.PageParams(r)
	filter := ListFilter{Limit: perPage, Offset: (page - 1) * perPage}
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
	if raw := r.URL.Query().Get("type"); raw != "" {
		vt := VehicleType(raw)
		filter.Type = &vt
	}

	vehicles, total, err := h.service.List(r.Context(), principal.UserID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listVehiclesResponse{
		Vehicles:   vehicles,
		Pagination: shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "vehicleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	var req updateVehicleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	vehicle, err := h.service.Update(r.Context(), principal.UserID, id, UpdateInput{
		PlateNumber: req.PlateNumber,
		VIN:         req.VIN,
		Make:        req.Make,
		Model:       req.Model,
		Year:        req.Year,
		Type:        VehicleType(req.Type),
		Status:      Status(req.Status),
		OdometerKM:  req.OdometerKM,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vehicle)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "vehicleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
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
