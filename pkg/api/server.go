package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/duetboard/duetboard/pkg/httputil"
	"github.com/duetboard/duetboard/pkg/observability"
	"github.com/duetboard/duetboard/pkg/sessions"
	"github.com/duetboard/duetboard/pkg/webhooks"
)

// NewRouter assembles the API router with middleware. metrics may be nil.
func NewRouter(manager *webhooks.Manager, store *sessions.Store, logger *observability.Logger, metrics *observability.Metrics) http.Handler {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	router := mux.NewRouter()

	v1 := router.PathPrefix("/api/v1").Subrouter()

	webhookHandlers := NewWebhookHandlers(manager)
	webhookHandlers.RegisterRoutes(v1)

	if store != nil {
		sessionHandlers := NewSessionHandlers(store)
		sessionHandlers.RegisterRoutes(v1)
	}

	var handler http.Handler = router
	handler = httputil.LoggingMiddleware(logger)(handler)
	if metrics != nil {
		handler = metrics.HTTPMiddleware(handler)
	}
	handler = httputil.RecoveryMiddleware(logger)(handler)
	handler = httputil.RequestIDMiddleware(handler)
	handler = otelhttp.NewHandler(handler, "duetboard.api")

	return handler
}
