package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/otiai10/doggyday/internal/booking"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Webhook event type constants
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventChargeRefunded           = "charge.refunded"
)

// ErrMissingAppointment is returned for payment events that name no appointment
var ErrMissingAppointment = errors.New("event carries no appointment id")

// PaymentRecorder stores the payment outcome of an appointment.
// *booking.Book satisfies it.
type PaymentRecorder interface {
	SetPaymentStatus(ctx context.Context, id string, status booking.PaymentStatus) error
}

// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event
//
// Parameters:
//   - payload: Raw request body
//   - signature: Stripe-Signature header value
//   - secret: Webhook signing secret
func VerifyWebhookSignature(payload []byte, signature, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return event, nil
}

// ParseCheckoutSessionCompleted returns the appointment a completed checkout
// paid for and whether Stripe reports it as paid.
func ParseCheckoutSessionCompleted(session *stripe.CheckoutSession) (appointmentID string, paid bool) {
	appointmentID = session.Metadata[MetadataAppointmentID]
	if appointmentID == "" {
		appointmentID = session.ClientReferenceID
	}
	return appointmentID, session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
}

// ParseChargeRefunded returns the appointment a fully refunded charge belonged to.
// Partial refunds return an empty ID.
func ParseChargeRefunded(charge *stripe.Charge) string {
	if !charge.Refunded {
		return ""
	}
	if id := charge.Metadata[MetadataAppointmentID]; id != "" {
		return id
	}
	if charge.PaymentIntent != nil {
		return charge.PaymentIntent.Metadata[MetadataAppointmentID]
	}
	return ""
}

// HandleEvent applies a verified Stripe event to the appointment it concerns.
// It reports whether the event type is one it acts on.
func HandleEvent(ctx context.Context, event stripe.Event, rec PaymentRecorder) (bool, error) {
	switch event.Type {
	case EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return true, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		id, paid := ParseCheckoutSessionCompleted(&session)
		if id == "" {
			return true, ErrMissingAppointment
		}
		if !paid {
			// Delayed payment methods settle in a later event.
			return true, nil
		}
		return true, rec.SetPaymentStatus(ctx, id, booking.PaymentPaid)

	case EventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return true, fmt.Errorf("failed to parse charge: %w", err)
		}
		if !charge.Refunded {
			return true, nil
		}
		id := ParseChargeRefunded(&charge)
		if id == "" {
			return true, ErrMissingAppointment
		}
		return true, rec.SetPaymentStatus(ctx, id, booking.PaymentRefunded)
	}
	return false, nil
}
