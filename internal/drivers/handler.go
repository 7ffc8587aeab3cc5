package drivers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"towfleet/pkg/jwt"
	"towfleet/pkg/web"
)

// Handler exposes driver HTTP endpoints.
type Handler struct{ svc *Service }

// NewHandler wires a handler to the driver service.
func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Register attaches driver routes to an authenticated router.
func (h *Handler) Register(r chi.Router) {
	driver := r.With(jwt.RequireRole("driver"))
	driver.Get("/profile", h.GetProfile)
	driver.Put("/profile", h.UpdateProfile)
	driver.Put("/location", h.UpdateLocation)
	driver.Put("/status", h.UpdateStatus)

	r.Get("/nearby", h.GetNearby)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims := jwt.GetClaims(r.Context())
	p, err := h.svc.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	claims := jwt.GetClaims(r.Context())
	p, err := h.svc.UpdateProfile(r.Context(), claims.UserID, upd)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var loc LocationUpdate
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	claims := jwt.GetClaims(r.Context())
	if err := h.svc.UpdateLocation(r.Context(), claims.UserID, loc.Lat, loc.Lng); err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]string{"message": "location updated"})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var upd StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	claims := jwt.GetClaims(r.Context())
	if err := h.svc.UpdateStatus(r.Context(), claims.UserID, upd.Status); err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]string{"message": "status updated"})
}

func (h *Handler) GetNearby(w http.ResponseWriter, r *http.Request) {
	lat, _ := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, _ := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	radius := 5.0
	if v := r.URL.Query().Get("radius"); v != "" {
		radius, _ = strconv.ParseFloat(v, 64)
	}
	ids, err := h.svc.NearbyIDs(r.Context(), lat, lng, radius)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	web.WriteJSON(w, http.StatusOK, map[string]any{"drivers": ids})
}
