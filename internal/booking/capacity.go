package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otiai10/doggyday/internal/store"
)

// Limits defines how many dogs a service takes per day
type Limits struct {
	MaxPerDay int
}

// DefaultLimits are used for services without a configured limit
var DefaultLimits = map[Service]Limits{
	ServiceDaycare:  {MaxPerDay: 20},
	ServiceGrooming: {MaxPerDay: 8},
	ServiceBoarding: {MaxPerDay: 10},
}

// GetLimits returns the limits for a service.
// A service missing from limits falls back to DefaultLimits.
func GetLimits(limits map[Service]Limits, s Service) Limits {
	if l, ok := limits[s]; ok {
		return l
	}
	return DefaultLimits[s]
}

// CapacityChecker admits bookings while a service has room left on a day
type CapacityChecker interface {
	// Reserve stores data as an appointment of service on day, or returns
	// ErrFullyBooked. Counting and storing happen as one step.
	Reserve(ctx context.Context, day time.Time, service Service, data map[string]any) (string, error)
}

// Checker implements CapacityChecker by counting appointments in the store.
// With a store.Transactor the count and create share a transaction; other
// stores are serialized by mu, which only covers this process.
type Checker struct {
	docs   store.Documents
	limits map[Service]Limits
	mu     sync.Mutex
}

var _ CapacityChecker = (*Checker)(nil)

// NewChecker creates a new Checker. A nil limits map uses DefaultLimits.
func NewChecker(docs store.Documents, limits map[Service]Limits) *Checker {
	return &Checker{docs: docs, limits: limits}
}

// CanBook counts the day's non-canceled appointments for the service
func (c *Checker) CanBook(ctx context.Context, day time.Time, service Service) (bool, error) {
	limits := GetLimits(c.limits, service)
	if limits.MaxPerDay <= 0 {
		return true, nil
	}

	records, err := c.docs.Query(ctx, AppointmentsCollection, dayService(day, service), nil)
	if err != nil {
		return false, fmt.Errorf("failed to count appointments: %w", err)
	}
	return tally(records)[service] < limits.MaxPerDay, nil
}

// Reserve implements CapacityChecker
func (c *Checker) Reserve(ctx context.Context, day time.Time, service Service, data map[string]any) (string, error) {
	limits := GetLimits(c.limits, service)
	if limits.MaxPerDay <= 0 {
		return c.docs.Create(ctx, AppointmentsCollection, data)
	}
	full := fmt.Errorf("%w: %s on %s", ErrFullyBooked, service, Day(day).Format(time.DateOnly))

	if txr, ok := c.docs.(store.Transactor); ok {
		var id string
		err := txr.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			records, err := tx.Query(AppointmentsCollection, dayService(day, service))
			if err != nil {
				return err
			}
			if tally(records)[service] >= limits.MaxPerDay {
				return full
			}
			id, err = tx.Create(AppointmentsCollection, data)
			return err
		})
		return id, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ok, err := c.CanBook(ctx, day, service)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", full
	}
	return c.docs.Create(ctx, AppointmentsCollection, data)
}

func dayService(day time.Time, service Service) []store.Condition {
	return []store.Condition{
		store.Where("date", store.OpEqual, Day(day)),
		store.Where("service", store.OpEqual, string(service)),
	}
}

// Availability is how full a service is on a day
type Availability struct {
	Service Service `json:"service"`
	Booked  int     `json:"booked"`
	// MaxPerDay is zero for services without a cap
	MaxPerDay int `json:"maxPerDay"`
}

// Open reports whether one more booking fits
func (a Availability) Open() bool {
	return a.MaxPerDay <= 0 || a.Booked < a.MaxPerDay
}

// Availability reports every service's bookings on day
func (c *Checker) Availability(ctx context.Context, day time.Time) ([]Availability, error) {
	booked, err := c.count(ctx, []store.Condition{
		store.Where("date", store.OpEqual, Day(day)),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Availability, len(Services))
	for i, s := range Services {
		out[i] = Availability{
			Service:   s,
			Booked:    booked[s],
			MaxPerDay: max(GetLimits(c.limits, s).MaxPerDay, 0),
		}
	}
	return out, nil
}

// count tallies non-canceled appointments per service
func (c *Checker) count(ctx context.Context, conditions []store.Condition) (map[Service]int, error) {
	records, err := c.docs.Query(ctx, AppointmentsCollection, conditions, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}
	return tally(records), nil
}

func tally(records []store.Record) map[Service]int {
	booked := make(map[Service]int)
	for _, r := range records {
		if Status(r.String("status")) != StatusCanceled {
			booked[Service(r.String("service"))]++
		}
	}
	return booked
}
