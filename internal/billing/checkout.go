package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/doggyday/internal/booking"
	"github.com/stripe/stripe-go/v78"
	checkoutsession "github.com/stripe/stripe-go/v78/checkout/session"
)

// MetadataAppointmentID links Stripe objects back to the appointment they pay for
const MetadataAppointmentID = "appointment_id"

var (
	// ErrNoPrice is returned when a service has no configured price
	ErrNoPrice = errors.New("no price configured for service")
	// ErrAlreadyPaid is returned when checkout is requested for a paid appointment
	ErrAlreadyPaid = errors.New("appointment already paid")
)

// Pricing is the amount charged per booked service, in the smallest currency unit
type Pricing struct {
	Currency string
	Amounts  map[booking.Service]int64
}

// Amount returns the price of service
func (p Pricing) Amount(service booking.Service) (int64, error) {
	amount, ok := p.Amounts[service]
	if !ok || amount <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, service)
	}
	return amount, nil
}

// CheckoutRequest describes one appointment to pay for
type CheckoutRequest struct {
	CustomerID  string
	Appointment booking.Appointment
	DogName     string
	SuccessURL  string
	CancelURL   string
}

// CreateCheckoutSession creates a one-off Stripe Checkout session for an appointment
//
// Returns:
//   - Stripe Checkout session
//   - ErrAlreadyPaid, ErrNoPrice, or an error if Stripe API call fails
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*stripe.CheckoutSession, error) {
	params, err := buildCheckoutSessionParams(c.pricing, req)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	session, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session, nil
}

// buildCheckoutSessionParams creates Stripe Checkout session parameters
func buildCheckoutSessionParams(pricing Pricing, req CheckoutRequest) (*stripe.CheckoutSessionParams, error) {
	a := req.Appointment
	if a.PaymentStatus == booking.PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	amount, err := pricing.Amount(a.Service)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{MetadataAppointmentID: a.ID}
	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(a.ID),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(pricing.Currency)),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(productName(a, req.DogName)),
						Description: stripe.String(a.StartTime.UTC().Format(time.RFC3339)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	return params, nil
}

func productName(a booking.Appointment, dogName string) string {
	name := strings.ToUpper(string(a.Service[:1])) + string(a.Service[1:])
	if dogName != "" {
		name += " for " + dogName
	}
	return name + " on " + booking.Day(a.Date).Format(time.DateOnly)
}
