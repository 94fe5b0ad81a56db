package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/otiai10/doggyday/internal/auth"
	"github.com/otiai10/doggyday/internal/booking"
	"github.com/otiai10/doggyday/internal/metrics"
	"github.com/otiai10/doggyday/internal/storage"
)

// maxPhotoBytes bounds dog photo uploads
const maxPhotoBytes = 10 << 20

// photoExtensions maps accepted upload content types to file extensions
var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// AvailabilitySource reports per-service bookings for a day.
// *booking.Checker satisfies it.
type AvailabilitySource interface {
	Availability(ctx context.Context, day time.Time) ([]booking.Availability, error)
}

// DogRequest is the body of POST /api/dogs
type DogRequest struct {
	Name  string `json:"name"`
	Breed string `json:"breed,omitempty"`
}

// AppointmentRequest is the body of POST /api/appointments
type AppointmentRequest struct {
	DogID     string          `json:"dogId"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Service   booking.Service `json:"service"`
	Notes     string          `json:"notes,omitempty"`
}

// PhotoResponse locates a dog photo
type PhotoResponse struct {
	PhotoPath string `json:"photoPath"`
	URL       string `json:"url"`
}

// BookingHandler serves the owner's dogs and appointments
type BookingHandler struct {
	book         *booking.Book
	availability AvailabilitySource
	objects      storage.Objects
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewBookingHandler creates a BookingHandler. availability, objects and m may be nil.
func NewBookingHandler(book *booking.Book, availability AvailabilitySource, objects storage.Objects, m *metrics.Metrics, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		book:         book,
		availability: availability,
		objects:      objects,
		metrics:      m,
		logger:       logger,
	}
}

// ListDogs handles GET /api/dogs
func (h *BookingHandler) ListDogs(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustGetClaims(r.Context())

	dogs, err := h.book.DogsByOwner(r.Context(), claims.UID)
	if err != nil {
		writeError(w, "failed to list dogs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, dogs, http.StatusOK)
}

// CreateDog handles POST /api/dogs
func (h *BookingHandler) CreateDog(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustGetClaims(r.Context())

	var req DogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	dog, err := h.book.CreateDog(r.Context(), booking.Dog{
		Owner: claims.UID,
		Name:  strings.TrimSpace(req.Name),
		Breed: strings.TrimSpace(req.Breed),
	})
	if err != nil {
		writeBookingError(w, err, "failed to create dog")
		return
	}
	writeJSON(w, dog, http.StatusCreated)
}

// GetDog handles GET /api/dogs/{id}
func (h *BookingHandler) GetDog(w http.ResponseWriter, r *http.Request, id string) {
	claims := auth.MustGetClaims(r.Context())

	dog, err := h.book.OwnedDog(r.Context(), id, claims.UID)
	if err != nil {
		writeBookingError(w, err, "failed to get dog")
		return
	}
	writeJSON(w, dog, http.StatusOK)
}

// DogAppointments handles GET /api/dogs/{id}/appointments
func (h *BookingHandler) DogAppointments(w http.ResponseWriter, r *http.Request, id string) {
	claims := auth.MustGetClaims(r.Context())

	if _, err := h.book.OwnedDog(r.Context(), id, claims.UID); err != nil {
		writeBookingError(w, err, "failed to get dog")
		return
	}
	appointments, err := h.book.ByDog(r.Context(), id)
	if err != nil {
		writeError(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, appointments, http.StatusOK)
}

// UploadDogPhoto handles PUT /api/dogs/{id}/photo. The body is the raw image.
func (h *BookingHandler) UploadDogPhoto(w http.ResponseWriter, r *http.Request, id string) {
	claims := auth.MustGetClaims(r.Context())

	if h.objects == nil {
		writeError(w, "photo storage is not configured", http.StatusServiceUnavailable)
		return
	}

	contentType, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	ext, ok := photoExtensions[strings.TrimSpace(contentType)]
	if !ok {
		writeError(w, "photo must be a jpeg, png, webp or gif image", http.StatusUnsupportedMediaType)
		return
	}

	dog, err := h.book.OwnedDog(r.Context(), id, claims.UID)
	if err != nil {
		writeBookingError(w, err, "failed to get dog")
		return
	}

	objectPath := storage.GenerateFilePath(claims.UID, "dogs", ext)
	body := http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	url, err := h.objects.Upload(r.Context(), objectPath, body, r.ContentLength, nil)
	if err != nil {
		h.countUpload("error")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "photo is too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Error("failed to upload dog photo", "dog_id", id, "error", err)
		writeError(w, "failed to upload photo", http.StatusBadGateway)
		return
	}

	if err := h.book.SetDogPhoto(r.Context(), id, objectPath); err != nil {
		h.countUpload("error")
		writeBookingError(w, err, "failed to save photo")
		return
	}
	h.countUpload("success")

	if dog.PhotoPath != "" {
		if err := h.objects.Delete(r.Context(), dog.PhotoPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("failed to delete replaced dog photo", "path", dog.PhotoPath, "error", err)
		}
	}

	writeJSON(w, PhotoResponse{PhotoPath: objectPath, URL: url}, http.StatusOK)
}

// GetDogPhoto handles GET /api/dogs/{id}/photo
func (h *BookingHandler) GetDogPhoto(w http.ResponseWriter, r *http.Request, id string) {
	claims := auth.MustGetClaims(r.Context())

	if h.objects == nil {
		writeError(w, "photo storage is not configured", http.StatusServiceUnavailable)
		return
	}

	dog, err := h.book.OwnedDog(r.Context(), id, claims.UID)
	if err != nil {
		writeBookingError(w, err, "failed to get dog")
		return
	}
	if dog.PhotoPath == "" {
		writeError(w, "dog has no photo", http.StatusNotFound)
		return
	}

	url, err := h.objects.URL(r.Context(), dog.PhotoPath)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, "dog has no photo", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to get photo", http.StatusBadGateway)
		return
	}
	writeJSON(w, PhotoResponse{PhotoPath: dog.PhotoPath, URL: url}, http.StatusOK)
}

// ListAppointments handles GET /api/appointments
// Optional from and to query parameters (YYYY-MM-DD) bound the dates.
func (h *BookingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustGetClaims(r.Context())

	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	appointments, err := h.book.ByOwner(r.Context(), claims.UID)
	if err != nil {
		writeError(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	filtered := make([]booking.Appointment, 0, len(appointments))
	for _, a := range appointments {
		if !from.IsZero() && a.Date.Before(from) {
			continue
		}
		if !to.IsZero() && a.Date.After(to) {
			continue
		}
		filtered = append(filtered, a)
	}
	writeJSON(w, filtered, http.StatusOK)
}

// CreateAppointment handles POST /api/appointments
func (h *BookingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustGetClaims(r.Context())

	var req AppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := h.book.OwnedDog(r.Context(), req.DogID, claims.UID); err != nil {
		writeBookingError(w, err, "failed to get dog")
		return
	}

	a, err := h.book.CreateAppointment(r.Context(), booking.Appointment{
		DogID:     req.DogID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Service:   req.Service,
		Notes:     req.Notes,
	})
	if err != nil {
		writeBookingError(w, err, "failed to create appointment")
		return
	}
	if h.metrics != nil {
		h.metrics.Appointments.WithLabelValues(string(a.Service)).Inc()
	}
	writeJSON(w, a, http.StatusCreated)
}

// GetAppointment handles GET /api/appointments/{id}
func (h *BookingHandler) GetAppointment(w http.ResponseWriter, r *http.Request, id string) {
	claims := auth.MustGetClaims(r.Context())

	a, err := h.book.OwnedAppointment(r.Context(), id, claims.UID)
	if err != nil {
		writeBookingError(w, err, "failed to get appointment")
		return
	}
	writeJSON(w, a, http.StatusOK)
}

// UpdateAppointment handles PATCH /api/appointments/{id}
// Owners may edit notes and cancel; other status changes belong to staff.
func (h *BookingHandler) UpdateAppointment(w http.ResponseWriter, r *http.Request, id string) {
	claims := auth.MustGetClaims(r.Context())

	var req booking.AppointmentUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Status != nil && *req.Status != booking.StatusCanceled {
		writeError(w, "owners can only cancel appointments", http.StatusForbidden)
		return
	}

	if _, err := h.book.OwnedAppointment(r.Context(), id, claims.UID); err != nil {
		writeBookingError(w, err, "failed to get appointment")
		return
	}
	if err := h.book.UpdateAppointment(r.Context(), id, req); err != nil {
		writeBookingError(w, err, "failed to update appointment")
		return
	}

	a, err := h.book.GetAppointment(r.Context(), id)
	if err != nil {
		writeBookingError(w, err, "failed to get appointment")
		return
	}
	writeJSON(w, a, http.StatusOK)
}

// DeleteAppointment handles DELETE /api/appointments/{id}
// Paid appointments are canceled instead, so the payment stays traceable.
func (h *BookingHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request, id string) {
	claims := auth.MustGetClaims(r.Context())

	a, err := h.book.OwnedAppointment(r.Context(), id, claims.UID)
	if err != nil {
		writeBookingError(w, err, "failed to get appointment")
		return
	}
	if a.PaymentStatus == booking.PaymentPaid {
		writeError(w, "paid appointments must be canceled, not deleted", http.StatusConflict)
		return
	}
	if err := h.book.DeleteAppointment(r.Context(), id); err != nil {
		writeBookingError(w, err, "failed to delete appointment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAvailability handles GET /api/availability?date=YYYY-MM-DD
func (h *BookingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	if h.availability == nil {
		writeError(w, "availability is not tracked", http.StatusNotFound)
		return
	}

	day, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slots, err := h.availability.Availability(r.Context(), day)
	if err != nil {
		writeError(w, "failed to get availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, slots, http.StatusOK)
}

func (h *BookingHandler) countUpload(outcome string) {
	if h.metrics != nil {
		h.metrics.PhotoUploads.WithLabelValues(outcome).Inc()
	}
}

// parseDateRange reads the optional from and to query parameters
func parseDateRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.DateOnly, v); err != nil {
			return from, to, errors.New("from must be YYYY-MM-DD")
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.DateOnly, v); err != nil {
			return from, to, errors.New("to must be YYYY-MM-DD")
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, errors.New("to must not be before from")
	}
	return from, to, nil
}
