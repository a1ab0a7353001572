// Package handler binds the registry and settlement engine to HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agegate/internal/subscription/models"
	"agegate/internal/subscription/service"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/httputil"
	"agegate/pkg/requestcontext"
)

// Service is what the handler needs from the subscription service.
type Service interface {
	CreatePlan(ctx context.Context, req service.CreatePlanRequest) (*models.Plan, error)
	GetPlan(ctx context.Context, planID id.PlanID) (*models.Plan, error)
	Register(ctx context.Context, planID id.PlanID, req service.RegisterRequest) (*models.Subscription, error)
	ListActiveByPlan(ctx context.Context, planID id.PlanID) ([]*models.Subscription, error)
	Cancel(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (*models.Subscription, error)
	GetSubscription(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (*models.Subscription, error)
	Settle(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (*models.Receipt, error)
	Deposit(ctx context.Context, amount uint64) (uint64, error)
	BalanceOf(ctx context.Context, account id.AccountID) (uint64, error)
	AuthorizeDelegate(ctx context.Context, delegate id.AccountID) error
	RevokeDelegate(ctx context.Context, delegate id.AccountID) error
	Owner(ctx context.Context) (id.AccountID, error)
	TransferOwnership(ctx context.Context, next id.AccountID) error
}

type Handler struct {
	service       Service
	auth          func(http.Handler) http.Handler
	registerLimit func(http.Handler) http.Handler
	logger        *slog.Logger
}

type Option func(*Handler)

// WithRegisterLimit throttles proof submissions. It runs after auth, so it can key on the
// caller.
func WithRegisterLimit(limit func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.registerLimit = limit }
}

// New wires the handler. auth guards every signed route and must put the caller in the
// request context.
func New(service Service, auth func(http.Handler) http.Handler, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, auth: auth, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes. Reads and settlement are open to anyone; everything that
// acts for an account requires a signed call.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/owner", h.HandleGetOwner)
		r.Get("/plans/{planID}", h.HandleGetPlan)
		r.Get("/plans/{planID}/subscriptions", h.HandleListSubscriptions)
		r.Get("/plans/{planID}/subscriptions/{subscriber}", h.HandleGetSubscription)
		r.Post("/plans/{planID}/subscriptions/{subscriber}/settle", h.HandleSettle)
		r.Get("/accounts/{account}/balance", h.HandleBalance)

		r.Group(func(r chi.Router) {
			r.Use(h.auth)
			r.Put("/owner", h.HandleTransferOwnership)
			r.Post("/plans", h.HandleCreatePlan)
			if h.registerLimit != nil {
				r.With(h.registerLimit).Post("/plans/{planID}/subscriptions", h.HandleRegister)
			} else {
				r.Post("/plans/{planID}/subscriptions", h.HandleRegister)
			}
			r.Delete("/plans/{planID}/subscriptions/{subscriber}", h.HandleCancel)
			r.Post("/accounts/deposit", h.HandleDeposit)
			r.Put("/accounts/delegates/{delegate}", h.HandleAuthorizeDelegate)
			r.Delete("/accounts/delegates/{delegate}", h.HandleRevokeDelegate)
		})
	})
}

func (h *Handler) HandleCreatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[CreatePlanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	plan, err := h.service.CreatePlan(ctx, req.parsed)
	if err != nil {
		h.fail(ctx, w, "create plan", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toPlanResponse(plan))
}

func (h *Handler) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, err := id.ParsePlanID(chi.URLParam(r, "planID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	plan, err := h.service.GetPlan(ctx, planID)
	if err != nil {
		h.fail(ctx, w, "get plan", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPlanResponse(plan))
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	planID, err := id.ParsePlanID(chi.URLParam(r, "planID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sub, err := h.service.Register(ctx, planID, req.parsed)
	if err != nil {
		h.fail(ctx, w, "register", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

// HandleListSubscriptions lists a plan's subscriptions. Only status=active is supported,
// which is also the default.
func (h *Handler) HandleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, err := id.ParsePlanID(chi.URLParam(r, "planID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" && status != string(models.StatusActive) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "status must be active"))
		return
	}
	subs, err := h.service.ListActiveByPlan(ctx, planID)
	if err != nil {
		h.fail(ctx, w, "list subscriptions", err)
		return
	}
	resp := SubscriptionListResponse{PlanID: planID.String(), Subscriptions: make([]SubscriptionResponse, 0, len(subs))}
	for _, sub := range subs {
		resp.Subscriptions = append(resp.Subscriptions, toSubscriptionResponse(sub))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, subscriber, ok := pairParams(w, r)
	if !ok {
		return
	}
	sub, err := h.service.Cancel(ctx, subscriber, planID)
	if err != nil {
		h.fail(ctx, w, "cancel", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *Handler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, subscriber, ok := pairParams(w, r)
	if !ok {
		return
	}
	sub, err := h.service.GetSubscription(ctx, subscriber, planID)
	if err != nil {
		h.fail(ctx, w, "get subscription", err)
		return
	}
	if sub == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no subscription for this pair"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *Handler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, subscriber, ok := pairParams(w, r)
	if !ok {
		return
	}
	receipt, err := h.service.Settle(ctx, subscriber, planID)
	if err != nil {
		h.fail(ctx, w, "settle", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[DepositRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	balance, err := h.service.Deposit(ctx, req.Amount)
	if err != nil {
		h.fail(ctx, w, "deposit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{
		Account: requestcontext.Caller(ctx).String(),
		Balance: balance,
	})
}

func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.service.BalanceOf(ctx, account)
	if err != nil {
		h.fail(ctx, w, "balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Account: account.String(), Balance: balance})
}

func (h *Handler) HandleGetOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := h.service.Owner(ctx)
	if err != nil {
		h.fail(ctx, w, "get owner", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnerResponse{Owner: owner.String()})
}

func (h *Handler) HandleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[TransferOwnershipRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.TransferOwnership(ctx, req.parsed); err != nil {
		h.fail(ctx, w, "transfer ownership", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnerResponse{Owner: req.parsed.String()})
}

func (h *Handler) HandleAuthorizeDelegate(w http.ResponseWriter, r *http.Request) {
	h.delegate(w, r, h.service.AuthorizeDelegate, "authorize delegate")
}

func (h *Handler) HandleRevokeDelegate(w http.ResponseWriter, r *http.Request) {
	h.delegate(w, r, h.service.RevokeDelegate, "revoke delegate")
}

func (h *Handler) delegate(w http.ResponseWriter, r *http.Request, op func(context.Context, id.AccountID) error, name string) {
	ctx := r.Context()
	delegate, err := id.ParseAccountID(chi.URLParam(r, "delegate"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := op(ctx, delegate); err != nil {
		h.fail(ctx, w, name, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pairParams(w http.ResponseWriter, r *http.Request) (id.PlanID, id.AccountID, bool) {
	planID, err := id.ParsePlanID(chi.URLParam(r, "planID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.PlanID{}, id.AccountID{}, false
	}
	subscriber, err := id.ParseAccountID(chi.URLParam(r, "subscriber"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.PlanID{}, id.AccountID{}, false
	}
	return planID, subscriber, true
}

// fail logs at warn for domain rejections and at error for everything else.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed", "request_id", requestID, "error", err)
	} else {
		h.logger.WarnContext(ctx, op+" rejected", "request_id", requestID, "code", string(dErrors.CodeOf(err)))
	}
	httputil.WriteError(w, err)
}
