package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nordvolt/edi-hub/api/controllers"
	"github.com/nordvolt/edi-hub/api/middleware"
	"github.com/nordvolt/edi-hub/internal/delivery"
	"github.com/nordvolt/edi-hub/internal/mailbox"
	"github.com/nordvolt/edi-hub/pkg/config"
	"github.com/nordvolt/edi-hub/pkg/db"
	"github.com/nordvolt/edi-hub/pkg/logger"
	"github.com/nordvolt/edi-hub/pkg/redis"
	"github.com/nordvolt/edi-hub/pkg/storage/gcs"
)

type RouterParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      redis.Pinger
	Storage    gcs.Pinger
	Mailbox    *mailbox.Service
	Delivery   *delivery.Service
	Metrics    prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(params.Logger),
		middleware.RequestID(params.Logger),
		middleware.Logging(params.Logger),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(params.Config))
		r.Get("/ready", controllers.HealthReady(params.Config, params.Logger, params.DB, params.Redis, params.Storage))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", controllers.EnqueueMessage(params.Mailbox, params.Logger))
		r.Post("/peek", controllers.PeekMessage(params.Delivery, params.Logger))
		r.Delete("/messages/{messageId}", controllers.DequeueMessage(params.Delivery, params.Logger))
	})

	return r
}
