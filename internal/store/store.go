// Package store is the Document Access Layer: generic CRUD and filtered,
// sorted queries over named Firestore collections.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Timestamp fields stamped on every write
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var (
	// ErrNotFound is returned when updating or deleting a missing document
	ErrNotFound = errors.New("document not found")
	// ErrInvalidOperator is returned for query operators Firestore does not support
	ErrInvalidOperator = errors.New("invalid query operator")
)

// Record is one stored document
type Record struct {
	ID   string
	Data map[string]any
}

// String returns the string field name, or ""
func (r Record) String(name string) string {
	s, _ := r.Data[name].(string)
	return s
}

// Operator is a Firestore query comparison
type Operator string

const (
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpLess             Operator = "<"
	OpLessOrEqual      Operator = "<="
	OpGreater          Operator = ">"
	OpGreaterOrEqual   Operator = ">="
	OpArrayContains    Operator = "array-contains"
	OpArrayContainsAny Operator = "array-contains-any"
	OpIn               Operator = "in"
	OpNotIn            Operator = "not-in"
)

// Valid reports whether Firestore accepts the operator
func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual,
		OpArrayContains, OpArrayContainsAny, OpIn, OpNotIn:
		return true
	}
	return false
}

// Condition filters a query on one field
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// Where is shorthand for building a Condition
func Where(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

// Direction is a sort direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort orders query results by one field
type Sort struct {
	Field     string
	Direction Direction
}

// OrderBy is shorthand for building a Sort
func OrderBy(field string, dir Direction) Sort {
	return Sort{Field: field, Direction: dir}
}

// Documents is the Document Access Layer.
//
// Create stamps createdAt and updatedAt; Update stamps updatedAt.
// Read returns (nil, nil) for a missing document.
type Documents interface {
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	Read(ctx context.Context, collection, id string) (*Record, error)
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, conditions []Condition, sorts []Sort) ([]Record, error)
	List(ctx context.Context, collection string) ([]Record, error)
}

// Tx reads and writes inside one transaction. Every read must come before
// the first write.
type Tx interface {
	Query(collection string, conditions []Condition) ([]Record, error)
	Create(collection string, data map[string]any) (string, error)
}

// Transactor runs fn in a transaction. Writes made through tx land only if
// fn returns nil, and no other write can change what fn read before they do.
// fn may be called more than once.
type Transactor interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

func validate(conditions []Condition) error {
	for _, c := range conditions {
		if !c.Operator.Valid() {
			return fmt.Errorf("%w: %q on field %s", ErrInvalidOperator, c.Operator, c.Field)
		}
		if c.Field == "" {
			return fmt.Errorf("condition field is required")
		}
	}
	return nil
}
