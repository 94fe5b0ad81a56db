package billing

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/otiai10/doggyday/internal/booking"
	"github.com/stripe/stripe-go/v78"
)

var testPricing = Pricing{
	Currency: "USD",
	Amounts: map[booking.Service]int64{
		booking.ServiceDaycare:  4500,
		booking.ServiceGrooming: 6000,
	},
}

func testAppointment() booking.Appointment {
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	return booking.Appointment{
		ID:            "appt-1",
		DogID:         "dog-1",
		Date:          booking.Day(start),
		StartTime:     start,
		EndTime:       start.Add(8 * time.Hour),
		Service:       booking.ServiceDaycare,
		PaymentStatus: booking.PaymentPending,
	}
}

func TestPricing_Amount(t *testing.T) {
	tests := []struct {
		service booking.Service
		want    int64
		wantErr bool
	}{
		{booking.ServiceDaycare, 4500, false},
		{booking.ServiceGrooming, 6000, false},
		{booking.ServiceBoarding, 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := testPricing.Amount(tt.service)
		if tt.wantErr {
			if !errors.Is(err, ErrNoPrice) {
				t.Errorf("Amount(%q): expected ErrNoPrice, got %v", tt.service, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Amount(%q) = %d, %v; want %d", tt.service, got, err, tt.want)
		}
	}
}

func TestBuildCheckoutSessionParams(t *testing.T) {
	t.Run("builds a one-off payment for the appointment", func(t *testing.T) {
		params, err := buildCheckoutSessionParams(testPricing, CheckoutRequest{
			CustomerID:  "cus_1",
			Appointment: testAppointment(),
			DogName:     "Rex",
			SuccessURL:  "https://doggyday.example/paid",
			CancelURL:   "https://doggyday.example/cancel",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if *params.Mode != string(stripe.CheckoutSessionModePayment) {
			t.Errorf("Mode = %s", *params.Mode)
		}
		if *params.Customer != "cus_1" {
			t.Errorf("Customer = %s", *params.Customer)
		}
		if *params.ClientReferenceID != "appt-1" {
			t.Errorf("ClientReferenceID = %s", *params.ClientReferenceID)
		}
		if params.Metadata[MetadataAppointmentID] != "appt-1" {
			t.Errorf("session metadata = %v", params.Metadata)
		}
		if params.PaymentIntentData.Metadata[MetadataAppointmentID] != "appt-1" {
			t.Errorf("payment intent metadata = %v", params.PaymentIntentData.Metadata)
		}
		if *params.SuccessURL != "https://doggyday.example/paid" || *params.CancelURL != "https://doggyday.example/cancel" {
			t.Errorf("unexpected redirect URLs")
		}

		if len(params.LineItems) != 1 {
			t.Fatalf("expected 1 line item, got %d", len(params.LineItems))
		}
		item := params.LineItems[0]
		if *item.Quantity != 1 {
			t.Errorf("Quantity = %d", *item.Quantity)
		}
		if *item.PriceData.Currency != "usd" {
			t.Errorf("Currency = %s", *item.PriceData.Currency)
		}
		if *item.PriceData.UnitAmount != 4500 {
			t.Errorf("UnitAmount = %d", *item.PriceData.UnitAmount)
		}
		if name := *item.PriceData.ProductData.Name; name != "Daycare for Rex on 2024-06-03" {
			t.Errorf("product name = %q", name)
		}
	})

	t.Run("omits an empty customer", func(t *testing.T) {
		params, err := buildCheckoutSessionParams(testPricing, CheckoutRequest{Appointment: testAppointment()})
		if err != nil {
			t.Fatal(err)
		}
		if params.Customer != nil {
			t.Errorf("expected nil customer, got %v", *params.Customer)
		}
		if name := *params.LineItems[0].PriceData.ProductData.Name; strings.Contains(name, " for ") {
			t.Errorf("unexpected dog in product name %q", name)
		}
	})

	t.Run("refuses paid appointments", func(t *testing.T) {
		a := testAppointment()
		a.PaymentStatus = booking.PaymentPaid
		if _, err := buildCheckoutSessionParams(testPricing, CheckoutRequest{Appointment: a}); !errors.Is(err, ErrAlreadyPaid) {
			t.Errorf("expected ErrAlreadyPaid, got %v", err)
		}
	})

	t.Run("refuses unpriced services", func(t *testing.T) {
		a := testAppointment()
		a.Service = booking.ServiceBoarding
		if _, err := buildCheckoutSessionParams(testPricing, CheckoutRequest{Appointment: a}); !errors.Is(err, ErrNoPrice) {
			t.Errorf("expected ErrNoPrice, got %v", err)
		}
	})
}
