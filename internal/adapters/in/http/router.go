package httpin

import (
	"net/http"

	"go.uber.org/zap"

	"servio/internal/adapters/in/http/handler"
	"servio/internal/adapters/in/http/middleware"
	"servio/internal/adapters/out/notify"
	usecase "servio/internal/application/usecase"
)

// RouterDeps collects everything the HTTP surface needs, injected from the
// DI container.
type RouterDeps struct {
	CartUC      *usecase.CartUsecase
	ReconcileUC *usecase.ReconcileUsecase
	Notifier    notify.Notifier
	Auth        *middleware.UserAuth
	Log         *zap.Logger
}

// NewRouter wires handlers and per-route middleware. CORS is applied by the
// caller around the whole mux so it also covers /healthz.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	cart := handler.NewCartHandler(deps.CartUC, deps.Log)
	session := handler.NewSessionHandler(deps.ReconcileUC, deps.Log)
	events := handler.NewEventsHandler(deps.Notifier, deps.Log)

	// Cart routes work anonymously; a bearer token upgrades them to remote
	// mirroring.
	mux.Handle("GET /cart", deps.Auth.Optional(http.HandlerFunc(cart.Get)))
	mux.Handle("PUT /cart", deps.Auth.Optional(http.HandlerFunc(cart.Put)))
	mux.Handle("DELETE /cart", deps.Auth.Optional(http.HandlerFunc(cart.Clear)))
	mux.Handle("POST /cart/items", deps.Auth.Optional(http.HandlerFunc(cart.AddItem)))
	mux.Handle("PUT /cart/items", deps.Auth.Optional(http.HandlerFunc(cart.SetQty)))
	mux.Handle("DELETE /cart/items", deps.Auth.Optional(http.HandlerFunc(cart.RemoveItem)))

	mux.Handle("GET /cart/events", http.HandlerFunc(events.Stream))

	mux.Handle("POST /session/login", deps.Auth.Require(http.HandlerFunc(session.Login)))

	return middleware.Recover(deps.Log, mux)
}
