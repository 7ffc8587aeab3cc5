package requests

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"towfleet/internal/users"
	"towfleet/pkg/jwt"
	"towfleet/pkg/web"
)

// Handler exposes tow request HTTP endpoints.
type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Register attaches request routes to an authenticated router. The
// negotiation handler mounts its /{id}/... routes on the same router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/nearby", h.Nearby)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/accept", h.DirectAccept)
}

func actorFrom(r *http.Request) users.Actor {
	claims := jwt.GetClaims(r.Context())
	return users.Actor{ID: claims.UserID, Role: users.Role(claims.Role)}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	t, err := h.svc.Create(r.Context(), actorFrom(r), req)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), actorFrom(r))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	if list == nil {
		list = []TowRequest{}
	}
	web.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var upd UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	t, err := h.svc.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), upd)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) DirectAccept(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.DirectAccept(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Nearby(w http.ResponseWriter, r *http.Request) {
	radius := 0.0
	if v := r.URL.Query().Get("radius_km"); v != "" {
		radius, _ = strconv.ParseFloat(v, 64)
	}
	items, err := h.svc.Nearby(r.Context(), actorFrom(r), radius)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, items)
}
