package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"servio/internal/adapters/in/http/middleware"
	usecase "servio/internal/application/usecase"
	cartdom "servio/internal/domain/cart"
)

// CartHandler serves the cart endpoints. Anonymous callers are identified by
// an X-Device-Id header (a UUID minted client-side on first contact);
// authenticated callers additionally get their mutations mirrored to the
// remote tier.
//
// Mounts (router side):
// - GET    /cart
// - PUT    /cart
// - DELETE /cart
// - POST   /cart/items
// - PUT    /cart/items
// - DELETE /cart/items
type CartHandler struct {
	uc  *usecase.CartUsecase
	log *zap.Logger
}

func NewCartHandler(uc *usecase.CartUsecase, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{uc: uc, log: log}
}

type cartResponse struct {
	Items []cartdom.Entry `json:"items"`
}

type cartWriteRequest struct {
	Items []cartdom.Entry `json:"items"`
}

type itemRequest struct {
	ItemID string `json:"itemId"`
	Qty    int    `json:"qty"`
}

// deviceID extracts and validates the caller's device id. Empty or
// non-UUID values are rejected before they become store keys.
func deviceID(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("X-Device-Id"))
	if raw == "" {
		return "", false
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", false
	}
	return raw, true
}

// ownerID is non-empty only for authenticated callers.
func ownerID(r *http.Request) string {
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		return id.UID
	}
	return ""
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	did, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Device-Id")
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: h.uc.Read(r.Context(), did)})
}

func (h *CartHandler) Put(w http.ResponseWriter, r *http.Request) {
	did, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Device-Id")
		return
	}

	var req cartWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	entries, err := h.uc.Write(r.Context(), did, ownerID(r), req.Items)
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: entries})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	did, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Device-Id")
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	entries, err := h.uc.AddItem(r.Context(), did, ownerID(r), req.ItemID, req.Qty)
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: entries})
}

func (h *CartHandler) SetQty(w http.ResponseWriter, r *http.Request) {
	did, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Device-Id")
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	entries, err := h.uc.SetQty(r.Context(), did, ownerID(r), req.ItemID, req.Qty)
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: entries})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	did, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Device-Id")
		return
	}

	itemID := strings.TrimSpace(r.URL.Query().Get("itemId"))
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "itemId query parameter required")
		return
	}

	entries, err := h.uc.RemoveItem(r.Context(), did, ownerID(r), itemID)
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: entries})
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	did, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Device-Id")
		return
	}

	if err := h.uc.Clear(r.Context(), did, ownerID(r)); err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: []cartdom.Entry{}})
}

func (h *CartHandler) writeUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrCartInvalidArgument), errors.Is(err, cartdom.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("cart handler failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
