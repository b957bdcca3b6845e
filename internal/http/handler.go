package httpapp

import (
	"github.com/go-chi/chi/v5"

	"github.com/tonearm/royaltyd/internal/app"
	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/logger"
	"github.com/tonearm/royaltyd/internal/store"
)

type Handler struct {
	Royalties *app.RoyaltyService
	Payouts   *app.PayoutService
	Agg       *app.AggregationService
	Analytics *app.AnalyticsService
	Keys      *app.ApiKeyService
	Users     *store.DB
	Logger    *logger.Logger
}

func NewHandler(
	royalties *app.RoyaltyService,
	payouts *app.PayoutService,
	agg *app.AggregationService,
	analytics *app.AnalyticsService,
	keys *app.ApiKeyService,
	users *store.DB,
	log *logger.Logger,
) *Handler {
	return &Handler{
		Royalties: royalties,
		Payouts:   payouts,
		Agg:       agg,
		Analytics: analytics,
		Keys:      keys,
		Users:     users,
		Logger:    log.WithComponent("http"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.RequireScope(domain.ScopeTracksRead))
			r.Get("/royalties", h.ListRoyalties)
			r.Get("/royalties/{id}", h.GetRoyalty)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.RequireScope(domain.ScopeTracksWrite))
			r.Post("/royalties", h.IngestRoyalty)
			r.Post("/royalties/{id}/process", h.ProcessRoyalty)
			r.Post("/royalties/{id}/status", h.UpdateRoyaltyStatus)
			r.Post("/events", h.IngestEvents)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.RequireScope(domain.ScopeAnalyticsRead))
			r.Get("/analytics/daily/{date}", h.GetDailySummary)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.RequireScope(domain.ScopeProfileRead))
			r.Get("/users/{id}", h.GetUser)
			r.Get("/payouts", h.ListPayouts)
			r.Get("/payouts/{id}", h.GetPayout)
			r.Get("/users/{id}/keys", h.ListApiKeys)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.RequireScope(domain.ScopeProfileWrite))
			r.Post("/users", h.CreateUser)
			r.Post("/aggregation/run", h.RunAggregation)
			r.Post("/payouts/{id}/submit", h.SubmitPayout)
			r.Post("/payouts/{id}/cancel", h.CancelPayout)
			r.Post("/payouts/{id}/execute", h.ExecutePayout)
			r.Post("/payouts/{id}/reverse", h.ReversePayout)
			r.Post("/users/{id}/keys", h.IssueApiKey)
			r.Delete("/keys/{id}", h.RevokeApiKey)
		})
	})
}
