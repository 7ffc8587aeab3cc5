package users

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"towfleet/pkg/jwt"
	"towfleet/pkg/web"
)

// Handler exposes auth and admin HTTP endpoints.
type Handler struct{ svc *Service }

// NewHandler wires a handler to the user service.
func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Routes returns the /auth router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(jwt.RequireAuth)
		r.Get("/me", h.Me)
	})

	return r
}

// RegisterAdmin attaches the admin approval endpoints to an already
// role-guarded router.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/pending-approvals", h.PendingApprovals)
	r.Post("/approve-user/{id}", h.Approve)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	token, err := h.svc.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			web.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, token)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := jwt.GetClaims(r.Context())
	u, err := h.svc.GetByID(r.Context(), claims.UserID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.PendingApprovals(r.Context())
	if err != nil {
		web.WriteError(w, err)
		return
	}
	if list == nil {
		list = []User{}
	}
	web.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Approve(r.Context(), chi.URLParam(r, "id")); err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]string{"message": "user approved"})
}
