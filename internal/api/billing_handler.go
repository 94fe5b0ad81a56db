package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/otiai10/doggyday/internal/auth"
	"github.com/otiai10/doggyday/internal/billing"
	"github.com/otiai10/doggyday/internal/booking"
	"github.com/otiai10/doggyday/internal/config"
	"github.com/otiai10/doggyday/internal/metrics"
	"github.com/otiai10/doggyday/internal/user"
)

// maxWebhookBytes bounds Stripe webhook payloads
const maxWebhookBytes = 64 << 10

// PaymentGateway creates Stripe objects. *billing.Client satisfies it.
type PaymentGateway interface {
	OwnerCustomer(ctx context.Context, owner *user.User) (string, error)
	CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*stripe.CheckoutSession, error)
}

var _ PaymentGateway = (*billing.Client)(nil)

// CheckoutResponse is returned by POST /api/appointments/{id}/checkout
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// BillingHandler handles appointment payments
type BillingHandler struct {
	gateway  PaymentGateway
	book     *booking.Book
	userRepo user.Repository
	config   *config.BillingConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewBillingHandler creates a new BillingHandler. m may be nil.
func NewBillingHandler(gateway PaymentGateway, book *booking.Book, userRepo user.Repository, cfg *config.BillingConfig, m *metrics.Metrics, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		gateway:  gateway,
		book:     book,
		userRepo: userRepo,
		config:   cfg,
		metrics:  m,
		logger:   logger,
	}
}

// CreateCheckoutSession handles POST /api/appointments/{id}/checkout
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	claims := auth.MustGetClaims(ctx)

	a, err := h.book.OwnedAppointment(ctx, id, claims.UID)
	if err != nil {
		writeBookingError(w, err, "failed to get appointment")
		return
	}
	if a.Status == booking.StatusCanceled {
		writeError(w, "appointment is canceled", http.StatusConflict)
		return
	}

	dog, err := h.book.GetDog(ctx, a.DogID)
	if err != nil {
		writeBookingError(w, err, "failed to get dog")
		return
	}

	u, err := user.Ensure(ctx, h.userRepo, identityFromClaims(claims), time.Now().UTC())
	if err != nil {
		writeError(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	customerID, err := h.gateway.OwnerCustomer(ctx, u)
	if err != nil {
		h.logger.Error("failed to get Stripe customer", "uid", claims.UID, "error", err)
		writeError(w, "failed to create customer", http.StatusBadGateway)
		return
	}
	if customerID != u.StripeCustomerID {
		if err := h.userRepo.SetStripeCustomerID(ctx, u.ID, customerID); err != nil {
			writeError(w, "failed to save customer", http.StatusInternalServerError)
			return
		}
	}

	session, err := h.gateway.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		CustomerID:  customerID,
		Appointment: *a,
		DogName:     dog.Name,
		SuccessURL:  h.config.SuccessURL,
		CancelURL:   h.config.CancelURL,
	})
	switch {
	case errors.Is(err, billing.ErrAlreadyPaid):
		writeError(w, "appointment already paid", http.StatusConflict)
		return
	case errors.Is(err, billing.ErrNoPrice):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.logger.Error("failed to create checkout session", "appointment_id", id, "error", err)
		writeError(w, "failed to create checkout session", http.StatusBadGateway)
		return
	}

	writeJSON(w, CheckoutResponse{SessionID: session.ID, URL: session.URL}, http.StatusOK)
}

// StripeWebhook handles POST /api/webhooks/stripe
func (h *BillingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	// Read raw body for signature verification
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	// Get signature header
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		writeError(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	// Verify signature
	event, err := billing.VerifyWebhookSignature(body, signature, h.config.WebhookSecret)
	if err != nil {
		writeError(w, "invalid webhook signature", http.StatusBadRequest)
		return
	}

	handled, err := billing.HandleEvent(r.Context(), event, h.book)
	switch {
	case !handled:
		// Acknowledge unhandled events
		h.countEvent(event, "ignored")
	case errors.Is(err, billing.ErrMissingAppointment), errors.Is(err, booking.ErrNotFound):
		// Retrying cannot fix these, so they are acknowledged.
		h.logger.Warn("webhook event does not match an appointment", "type", event.Type, "event_id", event.ID, "error", err)
		h.countEvent(event, "unmatched")
	case err != nil:
		h.logger.Error("failed to handle webhook event", "type", event.Type, "event_id", event.ID, "error", err)
		h.countEvent(event, "error")
		writeError(w, "failed to handle event", http.StatusInternalServerError)
		return
	default:
		h.logger.Info("webhook event applied", "type", event.Type, "event_id", event.ID)
		h.countEvent(event, "applied")
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}` + "\n"))
}

func (h *BillingHandler) countEvent(event stripe.Event, outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookEvents.WithLabelValues(string(event.Type), outcome).Inc()
	}
}
