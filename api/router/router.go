package router

import (
	"context"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	bootstrap "github.com/tbeaudouin05/stripe-entitlements/api/bootstrap"
	stripehttp "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/http"
)

// Paths served by the API. The /functions/v1 aliases keep clients of the
// previous deployment working.
const (
	PathCheckoutSessions      = "/api/checkout-sessions"
	PathCheckoutSessionsAlias = "/functions/v1/create-checkout-session"
	PathStripeWebhook         = "/api/stripe-webhook"
	PathStripeWebhookAlias    = "/functions/v1/stripe-webhook"
	PathEntitlementMe         = "/api/entitlements/me"
	PathEntitlementStream     = "/api/entitlements/stream"
	PathHealth                = "/healthz"
	PathMetrics               = "/metrics"
)

// NewRouter returns the central HTTP router for the API, wired from the
// process-wide bootstrap.
func NewRouter() http.Handler {
	if err := bootstrap.Ensure(); err != nil {
		log.Error().Err(err).Msg("bootstrap ensure failed")
	}
	return New(bootstrap.Get())
}

// New builds the router over explicit dependencies.
func New(deps *bootstrap.Deps) http.Handler {
	mux := runtime.NewServeMux(runtime.WithRoutingErrorHandler(routingErrorHandler))

	if deps == nil || deps.Service == nil {
		unavailable := func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			stripehttp.WriteJSONError(w, http.StatusServiceUnavailable, "service not initialized")
		}
		for _, p := range []string{PathCheckoutSessions, PathCheckoutSessionsAlias, PathStripeWebhook, PathStripeWebhookAlias} {
			mustHandle(mux, http.MethodPost, p, unavailable)
		}
		mustHandle(mux, http.MethodGet, PathHealth, unavailable)
		return mux
	}

	h := stripehttp.NewHandler(stripehttp.Options{
		Service:           deps.Service,
		Verifier:          deps.Verifier,
		Hub:               deps.Hub,
		WebhookSecret:     deps.Config.StripeWebhookSecret,
		CustomerPortalURL: deps.Config.CustomerPortalURL,
	})

	for _, p := range []string{PathCheckoutSessions, PathCheckoutSessionsAlias} {
		mustHandle(mux, http.MethodPost, p, adapt(h.CreateCheckoutSession))
	}
	for _, p := range []string{PathStripeWebhook, PathStripeWebhookAlias} {
		mustHandle(mux, http.MethodPost, p, adapt(h.Webhook))
	}
	mustHandle(mux, http.MethodGet, PathEntitlementMe, adapt(h.Me))
	mustHandle(mux, http.MethodGet, PathEntitlementStream, adapt(h.Stream))
	mustHandle(mux, http.MethodGet, PathHealth, func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		if err := deps.Store.Ping(r.Context()); err != nil {
			log.Error().Err(err).Msg("health check failed")
			stripehttp.WriteJSONError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mustHandle(mux, http.MethodGet, PathMetrics, adapt(promhttp.Handler().ServeHTTP))
	return mux
}

func adapt(fn http.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) { fn(w, r) }
}

func mustHandle(mux *runtime.ServeMux, method, path string, h runtime.HandlerFunc) {
	if err := mux.HandlePath(method, path, h); err != nil {
		panic(err)
	}
}

// routingErrorHandler keeps 404/405 as plain HTTP statuses with the JSON
// error body instead of the gateway's gRPC status translation.
func routingErrorHandler(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, _ *http.Request, status int) {
	stripehttp.WriteJSONError(w, status, http.StatusText(status))
}
