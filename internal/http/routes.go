package httpapp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tonearm/royaltyd/internal/constants"
	"github.com/tonearm/royaltyd/internal/domain"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > constants.MaxPageLimit {
		return constants.DefaultPageLimit
	}
	return limit
}

func (h *Handler) IngestRoyalty(w http.ResponseWriter, r *http.Request) {
	var req ingestRoyaltyRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, err)
		return
	}

	royalty, err := h.Royalties.Ingest(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, royalty)
}

func (h *Handler) GetRoyalty(w http.ResponseWriter, r *http.Request) {
	royalty, err := h.Royalties.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, royalty)
}

func (h *Handler) ListRoyalties(w http.ResponseWriter, r *http.Request) {
	status := domain.RoyaltyStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		h.respondError(w, domain.ValidationErrors{{Field: "status", Message: "unknown status"}})
		return
	}
	royalties, err := h.Royalties.List(r.Context(), status, limitParam(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, royalties)
}

func (h *Handler) ProcessRoyalty(w http.ResponseWriter, r *http.Request) {
	var req processRoyaltyRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	royalty, err := h.Royalties.Process(r.Context(), chi.URLParam(r, "id"), req.toInputs())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, royalty)
}

func (h *Handler) UpdateRoyaltyStatus(w http.ResponseWriter, r *http.Request) {
	var req royaltyStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if !req.Status.Valid() {
		h.respondError(w, domain.ValidationErrors{{Field: "status", Message: "unknown status"}})
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Royalties.UpdateStatus(r.Context(), id, req.Status); err != nil {
		h.respondError(w, err)
		return
	}
	royalty, err := h.Royalties.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, royalty)
}

func (h *Handler) RunAggregation(w http.ResponseWriter, r *http.Request) {
	var req aggregationRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	if req.RecipientID != "" {
		result, err := h.Agg.Run(r.Context(), req.RecipientID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		h.respond(w, http.StatusOK, result)
		return
	}

	results, err := h.Agg.RunAll(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, results)
}

func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.Payouts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, payout)
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.Payouts.List(r.Context(), r.URL.Query().Get("recipient_id"), limitParam(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, payouts)
}

func (h *Handler) SubmitPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.Payouts.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, payout)
}

func (h *Handler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	var req payoutActionRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	payout, err := h.Payouts.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, payout)
}

func (h *Handler) ExecutePayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.Payouts.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, payout)
}

func (h *Handler) ReversePayout(w http.ResponseWriter, r *http.Request) {
	var req payoutActionRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	payout, err := h.Payouts.Reverse(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, payout)
}

func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	var events []*domain.AnalyticsEvent
	if err := h.decode(r, &events); err != nil {
		h.respondError(w, err)
		return
	}
	report, err := h.Analytics.Ingest(r.Context(), events)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusAccepted, report)
}

func (h *Handler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		h.respondError(w, domain.ValidationErrors{{Field: "date", Message: "must be YYYY-MM-DD"}})
		return
	}
	summary, err := h.Analytics.GetSummary(r.Context(), date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, summary)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:                  uuid.New().String(),
		Email:               req.Email,
		Name:                req.Name,
		Role:                req.Role,
		Status:              domain.UserStatusActive,
		PayoutMethod:        req.PayoutMethod,
		PayoutCurrency:      req.PayoutCurrency,
		MinimumPayoutAmount: req.MinimumPayoutAmount,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := user.Validate(); err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.Users.CreateUser(r.Context(), user); err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, user)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, user)
}

func (h *Handler) IssueApiKey(w http.ResponseWriter, r *http.Request) {
	var req issueKeyRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	key, err := h.Keys.Issue(r.Context(), chi.URLParam(r, "id"), req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, issuedKeyResponse{Key: key})
}

func (h *Handler) ListApiKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.Keys.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	// The plaintext value is only shown at issuance.
	for _, key := range keys {
		key.Key = ""
	}
	h.respond(w, http.StatusOK, keys)
}

func (h *Handler) RevokeApiKey(w http.ResponseWriter, r *http.Request) {
	if err := h.Keys.Revoke(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}
