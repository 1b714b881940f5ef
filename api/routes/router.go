package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tablepay-backend/api/controllers"
	paymentcontrollers "github.com/angelmondragon/tablepay-backend/api/controllers/payments"
	"github.com/angelmondragon/tablepay-backend/api/middleware"
	"github.com/angelmondragon/tablepay-backend/internal/payments"
	"github.com/angelmondragon/tablepay-backend/pkg/config"
	"github.com/angelmondragon/tablepay-backend/pkg/db"
	"github.com/angelmondragon/tablepay-backend/pkg/logger"
	"github.com/angelmondragon/tablepay-backend/pkg/redis"
)

// Dependencies are the collaborators the HTTP surface needs. Redis and
// Idempotency are nil when idempotency is disabled; Gatherer is nil when
// /metrics should not be mounted.
type Dependencies struct {
	DB          db.Pinger
	Redis       redis.Pinger
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Payments    payments.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(logg, deps.DB, deps.Redis))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			if cfg.Idempotency.Enabled && deps.Idempotency != nil {
				r.Use(middleware.Idempotency(deps.Idempotency, cfg.Idempotency.TTL, logg))
			}

			r.Post("/payments", paymentcontrollers.RecordPayment(deps.Payments, logg))
			r.Get("/payments", paymentcontrollers.ListPayments(deps.Payments, logg))
			r.Post("/payments/split", paymentcontrollers.RecordSplitPayment(deps.Payments, logg))
			r.Post("/refunds", paymentcontrollers.CreateRefund(deps.Payments, logg))
			r.Get("/refunds", paymentcontrollers.ListRefunds(deps.Payments, logg))
			r.Get("/payment-summary", paymentcontrollers.Summary(deps.Payments, logg))
			r.Post("/split-preview", paymentcontrollers.SplitPreview(deps.Payments, logg))
		})
	})

	return r
}
