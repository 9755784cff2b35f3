package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"citywalk/internal/certification/models"
	"citywalk/internal/certification/providers"
	id "citywalk/pkg/domain"
	"citywalk/pkg/platform/httputil"
	"citywalk/pkg/requestcontext"
)

// Service defines the certification operations exposed to admins.
type Service interface {
	Chain(ctx context.Context, ownershipID id.OwnershipID, provider string) (*providers.NotarizationResult, error)
	Verify(ctx context.Context, ownershipID id.OwnershipID) (*providers.VerificationResult, error)
	Status(ctx context.Context, ownershipID id.OwnershipID) (*models.ChainStatusView, error)
	ProviderInfo(ctx context.Context) (*models.ProviderInfo, error)
}

// Handler wires certification endpoints to the certification service.
type Handler struct {
	service    Service
	logger     *slog.Logger
	chainLimit []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithChainMiddleware wraps only the POST chain route, e.g. with a per-actor limiter.
func WithChainMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.chainLimit = append(h.chainLimit, mw...)
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts certification endpoints on the router. The caller applies
// authentication and role middleware.
func (h *Handler) Register(r chi.Router) {
	r.With(h.chainLimit...).Post("/admin/seal-ownerships/{id}/chain", h.HandleChain)
	r.Get("/admin/seal-ownerships/{id}/chain", h.HandleStatus)
	r.Get("/admin/seal-ownerships/{id}/verify", h.HandleVerify)
	r.Get("/admin/chain/providers", h.HandleProviders)
}

// HandleChain handles POST /admin/seal-ownerships/{id}/chain.
func (h *Handler) HandleChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	ownershipID, err := id.ParseOwnershipID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[ChainRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Chain(ctx, ownershipID, req.Provider)
	if err != nil {
		h.logger.WarnContext(ctx, "chain failed",
			"request_id", requestID,
			"ownership_id", ownershipID,
			"provider", req.Provider,
			"actor_id", requestcontext.ActorID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "seal ownership chained",
		"request_id", requestID,
		"ownership_id", ownershipID,
		"provider", result.ProviderName,
		"reference_id", result.ReferenceID,
		"actor_id", requestcontext.ActorID(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromNotarization(result))
}

// HandleVerify handles GET /admin/seal-ownerships/{id}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	ownershipID, err := id.ParseOwnershipID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Verify(ctx, ownershipID)
	if err != nil {
		h.logger.WarnContext(ctx, "verify failed",
			"request_id", requestID,
			"ownership_id", ownershipID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromVerification(result))
}

// HandleStatus handles GET /admin/seal-ownerships/{id}/chain.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownershipID, err := id.ParseOwnershipID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, err := h.service.Status(ctx, ownershipID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromStatus(view))
}

// HandleProviders handles GET /admin/chain/providers.
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.service.ProviderInfo(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "provider info failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProviderInfo(info))
}
