package pricing

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"towfleet/pkg/jwt"
	"towfleet/pkg/web"
)

// Handler exposes pricing HTTP endpoints. Admin and driver routes are
// registered onto role-guarded routers by the caller.
type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterAdmin attaches the base-config endpoints.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/pricing-config", h.GetConfig)
	r.Put("/pricing-config", h.PutConfig)
}

// RegisterDriver attaches the per-driver override endpoints.
func (h *Handler) RegisterDriver(r chi.Router) {
	r.Get("/pricing", h.GetDriverPricing)
	r.Put("/pricing", h.PutDriverPricing)
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.CurrentConfig(r.Context())
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	var upd ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	claims := jwt.GetClaims(r.Context())
	cfg, err := h.svc.UpdateConfig(r.Context(), claims.UserID, upd)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) GetDriverPricing(w http.ResponseWriter, r *http.Request) {
	claims := jwt.GetClaims(r.Context())
	dp, err := h.svc.GetDriverPricing(r.Context(), claims.UserID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, dp)
}

func (h *Handler) PutDriverPricing(w http.ResponseWriter, r *http.Request) {
	var upd DriverPricingUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	claims := jwt.GetClaims(r.Context())
	dp, err := h.svc.UpdateDriverPricing(r.Context(), claims.UserID, upd)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, dp)
}
