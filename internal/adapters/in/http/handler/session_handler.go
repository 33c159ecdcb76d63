package handler

import (
	"net/http"

	"go.uber.org/zap"

	"servio/internal/adapters/in/http/middleware"
	usecase "servio/internal/application/usecase"
	cartdom "servio/internal/domain/cart"
)

// SessionHandler owns the login transition. The authentication collaborator
// (Firebase) has already produced a verified identity by the time Login
// runs; this endpoint's job is the one-time cart reconciliation for the
// session.
type SessionHandler struct {
	reconcile *usecase.ReconcileUsecase
	log       *zap.Logger
}

func NewSessionHandler(reconcile *usecase.ReconcileUsecase, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{reconcile: reconcile, log: log}
}

type loginResponse struct {
	UserID string          `json:"userId"`
	Items  []cartdom.Entry `json:"items"`
}

// Login runs cart reconciliation for the caller's session and returns the
// merged cart. Mounted behind the auth-required middleware.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	did, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Device-Id")
		return
	}

	items, err := h.reconcile.OnLogin(r.Context(), id.UID, did, id.SessionID)
	if err != nil {
		h.log.Error("login reconciliation failed",
			zap.String("user", id.UID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{UserID: id.UID, Items: items})
}
