package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/otiai10/doggyday/internal/store"
)

// maxInValues is the most values Firestore accepts in one "in" filter
const maxInValues = 30

// byDateThenStart is the ordering of every appointment listing
var byDateThenStart = []store.Sort{
	store.OrderBy("date", store.Asc),
	store.OrderBy("startTime", store.Asc),
}

// Book is the booking service over the Document Access Layer
type Book struct {
	docs     store.Documents
	capacity CapacityChecker
}

// Option configures a Book
type Option func(*Book)

// WithCapacity makes CreateAppointment refuse bookings over capacity
func WithCapacity(c CapacityChecker) Option {
	return func(b *Book) {
		b.capacity = c
	}
}

// New creates a Book over docs
func New(docs store.Documents, opts ...Option) *Book {
	b := &Book{docs: docs}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateDog registers a dog for its owner
func (b *Book) CreateDog(ctx context.Context, d Dog) (*Dog, error) {
	if d.Owner == "" || d.Name == "" {
		return nil, fmt.Errorf("%w: owner and name are required", ErrInvalid)
	}
	id, err := b.docs.Create(ctx, DogsCollection, dogToMap(d))
	if err != nil {
		return nil, fmt.Errorf("failed to create dog: %w", err)
	}
	return b.GetDog(ctx, id)
}

// GetDog returns the dog or ErrNotFound
func (b *Book) GetDog(ctx context.Context, id string) (*Dog, error) {
	rec, err := b.docs.Read(ctx, DogsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get dog: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	d := recordToDog(*rec)
	return &d, nil
}

// DogsByOwner lists the owner's dogs by name
func (b *Book) DogsByOwner(ctx context.Context, owner string) ([]Dog, error) {
	records, err := b.docs.Query(ctx, DogsCollection,
		[]store.Condition{store.Where("owner", store.OpEqual, owner)},
		[]store.Sort{store.OrderBy("name", store.Asc)})
	if err != nil {
		return nil, fmt.Errorf("failed to list dogs: %w", err)
	}
	dogs := make([]Dog, len(records))
	for i, r := range records {
		dogs[i] = recordToDog(r)
	}
	return dogs, nil
}

// SetDogPhoto records the storage path of the dog's photo
func (b *Book) SetDogPhoto(ctx context.Context, id, path string) error {
	if err := b.docs.Update(ctx, DogsCollection, id, map[string]any{"photoPath": path}); err != nil {
		return mapNotFound(err, "failed to set dog photo")
	}
	return nil
}

// OwnedDog returns the dog if owner owns it, ErrForbidden otherwise
func (b *Book) OwnedDog(ctx context.Context, id, owner string) (*Dog, error) {
	d, err := b.GetDog(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Owner != owner {
		return nil, ErrForbidden
	}
	return d, nil
}

// CreateAppointment validates a, checks capacity and stores it as a
// scheduled, payment-pending appointment.
func (b *Book) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.Date.IsZero() {
		a.Date = a.StartTime
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.PaymentStatus == "" {
		a.PaymentStatus = PaymentPending
	}

	var id string
	var err error
	if b.capacity != nil {
		id, err = b.capacity.Reserve(ctx, a.Date, a.Service, appointmentToMap(a))
	} else {
		id, err = b.docs.Create(ctx, AppointmentsCollection, appointmentToMap(a))
	}
	if errors.Is(err, ErrFullyBooked) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	return b.GetAppointment(ctx, id)
}

// GetAppointment returns the appointment or ErrNotFound
func (b *Book) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	rec, err := b.docs.Read(ctx, AppointmentsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	a := recordToAppointment(*rec)
	return &a, nil
}

// OwnedAppointment returns the appointment if its dog belongs to owner
func (b *Book) OwnedAppointment(ctx context.Context, id, owner string) (*Appointment, error) {
	a, err := b.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := b.OwnedDog(ctx, a.DogID, owner); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return a, nil
}

// AppointmentUpdate carries mutable appointment fields. Nil fields are left unchanged.
type AppointmentUpdate struct {
	Notes  *string `json:"notes,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// UpdateAppointment applies u to the appointment
func (b *Book) UpdateAppointment(ctx context.Context, id string, u AppointmentUpdate) error {
	partial := map[string]any{}
	if u.Notes != nil {
		partial["notes"] = *u.Notes
	}
	if u.Status != nil {
		partial["status"] = string(*u.Status)
	}
	if len(partial) == 0 {
		return nil
	}
	if err := b.docs.Update(ctx, AppointmentsCollection, id, partial); err != nil {
		return mapNotFound(err, "failed to update appointment")
	}
	return nil
}

// SetPaymentStatus records the payment outcome of an appointment
func (b *Book) SetPaymentStatus(ctx context.Context, id string, status PaymentStatus) error {
	if err := b.docs.Update(ctx, AppointmentsCollection, id, map[string]any{"paymentStatus": string(status)}); err != nil {
		return mapNotFound(err, "failed to set payment status")
	}
	return nil
}

// DeleteAppointment removes the appointment
func (b *Book) DeleteAppointment(ctx context.Context, id string) error {
	if err := b.docs.Delete(ctx, AppointmentsCollection, id); err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return nil
}

// ByDog lists a dog's appointments ordered by date then start time
func (b *Book) ByDog(ctx context.Context, dogID string) ([]Appointment, error) {
	return b.query(ctx, []store.Condition{store.Where("dogId", store.OpEqual, dogID)})
}

// ByDate lists appointments whose date falls in [start, end]
func (b *Book) ByDate(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	return b.query(ctx, []store.Condition{
		store.Where("date", store.OpGreaterOrEqual, Day(start)),
		store.Where("date", store.OpLessOrEqual, Day(end)),
	})
}

// ByOwner lists the appointments of every dog the owner has. An owner
// without dogs has no appointments.
func (b *Book) ByOwner(ctx context.Context, owner string) ([]Appointment, error) {
	records, err := b.docs.Query(ctx, DogsCollection,
		[]store.Condition{store.Where("owner", store.OpEqual, owner)}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list dogs: %w", err)
	}
	if len(records) == 0 {
		return []Appointment{}, nil
	}

	dogIDs := make([]string, len(records))
	for i, r := range records {
		dogIDs[i] = r.ID
	}

	var all []Appointment
	for start := 0; start < len(dogIDs); start += maxInValues {
		end := min(start+maxInValues, len(dogIDs))
		chunk, err := b.query(ctx, []store.Condition{
			store.Where("dogId", store.OpIn, dogIDs[start:end]),
		})
		if err != nil {
			return nil, err
		}
		all = append(all, chunk...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.Before(all[j].Date)
		}
		return all[i].StartTime.Before(all[j].StartTime)
	})
	return all, nil
}

func (b *Book) query(ctx context.Context, conditions []store.Condition) ([]Appointment, error) {
	records, err := b.docs.Query(ctx, AppointmentsCollection, conditions, byDateThenStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	out := make([]Appointment, len(records))
	for i, r := range records {
		out[i] = recordToAppointment(r)
	}
	return out, nil
}

func mapNotFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
