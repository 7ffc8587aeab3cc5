package negotiation

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"towfleet/internal/users"
	"towfleet/pkg/jwt"
	"towfleet/pkg/web"
)

// Handler exposes the negotiation HTTP endpoints. Mounted on the same
// router as the tow request handler.
type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Register attaches the offer routes to an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/{id}/offer", h.MakeOffer)
	r.Get("/{id}/offers", h.ListOffers)
	r.Post("/{id}/accept-offer", h.AcceptOffer)
	r.Post("/{id}/reject-offer", h.RejectOffer)
}

func actorFrom(r *http.Request) users.Actor {
	claims := jwt.GetClaims(r.Context())
	return users.Actor{ID: claims.UserID, Role: users.Role(claims.Role)}
}

func (h *Handler) MakeOffer(w http.ResponseWriter, r *http.Request) {
	var req MakeOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	offer, err := h.svc.MakeOffer(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, offer)
}

func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.svc.ListOffers(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	if offers == nil {
		offers = []PriceOffer{}
	}
	web.WriteJSON(w, http.StatusOK, offers)
}

func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.AcceptOffer(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) RejectOffer(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.RejectOffer(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t)
}
