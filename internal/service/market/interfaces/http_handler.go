// internal/service/market/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"bazaar/internal/service/market/application"
	"bazaar/internal/service/market/domain"
)

var finalizeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bazaar_finalize_total",
	Help: "Finalization attempts partitioned by outcome.",
}, []string{"outcome"})

// MarketHandler 封装市场核心的 HTTP 处理器。
// 调用者身份（买家/卖家）由上游网关认证后放在 X-User-ID 头里传入。
type MarketHandler struct {
	service *application.MarketApplicationService
}

func NewMarketHandler(service *application.MarketApplicationService) *MarketHandler {
	return &MarketHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *MarketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /offers", h.handleCreateOffer)
	mux.HandleFunc("GET /offers", h.handleListOffers)
	mux.HandleFunc("POST /finalize", h.handleFinalize)
	mux.HandleFunc("POST /ratings", h.handleSubmitRating)
}

type createOfferRequest struct {
	ListingID string  `json:"listingId"`
	Kind      string  `json:"kind"`
	Amount    float64 `json:"amount"`
}

func (h *MarketHandler) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	buyerID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		http.Error(w, "invalid listingId", http.StatusBadRequest)
		return
	}

	offer, err := h.service.CreateOffer(ctx, listingID, buyerID, domain.OfferKind(req.Kind), req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, offer)
}

func (h *MarketHandler) handleListOffers(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	listingID, err := uuid.Parse(r.URL.Query().Get("listingId"))
	if err != nil {
		http.Error(w, "invalid listingId", http.StatusBadRequest)
		return
	}

	offers, err := h.service.ListOffers(ctx, listingID)
	if err != nil {
		respondError(w, err)
		return
	}
	if offers == nil {
		offers = []*domain.Offer{}
	}
	respondJSON(w, http.StatusOK, offers)
}

type finalizeRequest struct {
	ListingID string `json:"listingId"`
	OfferID   string `json:"offerId"`
}

func (h *MarketHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	sellerID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		http.Error(w, "invalid listingId", http.StatusBadRequest)
		return
	}
	offerID, err := uuid.Parse(req.OfferID)
	if err != nil {
		http.Error(w, "invalid offerId", http.StatusBadRequest)
		return
	}

	if err := h.service.Finalize(ctx, listingID, offerID, sellerID); err != nil {
		finalizeOutcomes.WithLabelValues(outcomeLabel(err)).Inc()
		respondError(w, err)
		return
	}
	finalizeOutcomes.WithLabelValues("success").Inc()
	respondJSON(w, http.StatusOK, map[string]string{"result": "success"})
}

type submitRatingRequest struct {
	OfferID string `json:"offerId"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

func (h *MarketHandler) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	raterID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req submitRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	offerID, err := uuid.Parse(req.OfferID)
	if err != nil {
		http.Error(w, "invalid offerId", http.StatusBadRequest)
		return
	}

	rating, err := h.service.SubmitRating(ctx, offerID, raterID, req.Score, req.Comment)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rating)
}

// --- helpers ---

func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		http.Error(w, "missing or invalid X-User-ID header", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError 把领域错误映射到 HTTP 状态码。
// 冲突类错误返回 409，客户端应刷新商品状态而不是盲目重试；
// 可重试的存储故障返回 503 并带上 Retry-After。
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotAuthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrOfferInvalid),
		errors.Is(err, domain.ErrOfferNotCompleted),
		errors.Is(err, domain.ErrDuplicateRating),
		errors.Is(err, domain.ErrListingNotOpen):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrListingNotFound),
		errors.Is(err, domain.ErrOfferNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidOfferKind),
		errors.Is(err, domain.ErrSelfOffer),
		errors.Is(err, domain.ErrRaterNotParty),
		errors.Is(err, domain.ErrInvalidScore):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case domain.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyFinalized):
		return "already_finalized"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, domain.ErrOfferInvalid):
		return "offer_invalid"
	case domain.IsRetryable(err):
		return "retryable"
	default:
		return "error"
	}
}
