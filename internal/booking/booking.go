// Package booking holds the daycare domain: dogs, their appointments and
// the per-day capacity of each service. Documents live in Firestore through
// the store package.
package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/otiai10/doggyday/internal/store"
)

// Firestore collections
const (
	AppointmentsCollection = "appointments"
	DogsCollection         = "dogs"
)

// Service is the kind of care booked
type Service string

const (
	ServiceDaycare  Service = "daycare"
	ServiceGrooming Service = "grooming"
	ServiceBoarding Service = "boarding"
)

// Services lists every bookable service
var Services = []Service{ServiceDaycare, ServiceGrooming, ServiceBoarding}

// Valid reports whether s is a known service
func (s Service) Valid() bool {
	switch s {
	case ServiceDaycare, ServiceGrooming, ServiceBoarding:
		return true
	}
	return false
}

// Status is the lifecycle state of an appointment
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// PaymentStatus tracks payment of an appointment
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

var (
	// ErrNotFound is returned when an appointment or dog does not exist
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller does not own the dog
	ErrForbidden = errors.New("not the owner of this dog")
	// ErrInvalid is returned for appointments or dogs that fail validation
	ErrInvalid = errors.New("invalid booking")
	// ErrFullyBooked is returned when the day has no capacity left for the service
	ErrFullyBooked = errors.New("fully booked")
)

// Appointment is one booked slot for a dog
type Appointment struct {
	ID            string        `json:"id"`
	DogID         string        `json:"dogId"`
	Date          time.Time     `json:"date"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	Service       Service       `json:"service"`
	Notes         string        `json:"notes,omitempty"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Validate checks the fields a caller must supply
func (a Appointment) Validate() error {
	switch {
	case a.DogID == "":
		return fmt.Errorf("%w: dogId is required", ErrInvalid)
	case !a.Service.Valid():
		return fmt.Errorf("%w: unknown service %q", ErrInvalid, a.Service)
	case a.StartTime.IsZero() || a.EndTime.IsZero():
		return fmt.Errorf("%w: startTime and endTime are required", ErrInvalid)
	case !a.EndTime.After(a.StartTime):
		return fmt.Errorf("%w: endTime must be after startTime", ErrInvalid)
	}
	return nil
}

// Dog is a dog registered by an owner
type Dog struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"` // Firebase UID
	Name      string    `json:"name"`
	Breed     string    `json:"breed,omitempty"`
	PhotoPath string    `json:"photoPath,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Day truncates t to midnight UTC, the value stored in Appointment.Date
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// appointmentToMap converts an Appointment to a map for Firestore storage.
// Timestamps are stamped by the store.
func appointmentToMap(a Appointment) map[string]any {
	return map[string]any{
		"dogId":         a.DogID,
		"date":          Day(a.Date),
		"startTime":     a.StartTime.UTC(),
		"endTime":       a.EndTime.UTC(),
		"service":       string(a.Service),
		"notes":         a.Notes,
		"status":        string(a.Status),
		"paymentStatus": string(a.PaymentStatus),
	}
}

// recordToAppointment converts a stored document to an Appointment
func recordToAppointment(r store.Record) Appointment {
	a := Appointment{
		ID:            r.ID,
		DogID:         r.String("dogId"),
		Service:       Service(r.String("service")),
		Notes:         r.String("notes"),
		Status:        Status(r.String("status")),
		PaymentStatus: PaymentStatus(r.String("paymentStatus")),
	}
	a.Date, _ = r.Data["date"].(time.Time)
	a.StartTime, _ = r.Data["startTime"].(time.Time)
	a.EndTime, _ = r.Data["endTime"].(time.Time)
	a.CreatedAt, _ = r.Data[store.FieldCreatedAt].(time.Time)
	a.UpdatedAt, _ = r.Data[store.FieldUpdatedAt].(time.Time)
	return a
}

func dogToMap(d Dog) map[string]any {
	return map[string]any{
		"owner":     d.Owner,
		"name":      d.Name,
		"breed":     d.Breed,
		"photoPath": d.PhotoPath,
	}
}

func recordToDog(r store.Record) Dog {
	d := Dog{
		ID:        r.ID,
		Owner:     r.String("owner"),
		Name:      r.String("name"),
		Breed:     r.String("breed"),
		PhotoPath: r.String("photoPath"),
	}
	d.CreatedAt, _ = r.Data[store.FieldCreatedAt].(time.Time)
	d.UpdatedAt, _ = r.Data[store.FieldUpdatedAt].(time.Time)
	return d
}
