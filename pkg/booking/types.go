package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
)

// Status is the lifecycle state of a reservation
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// OccupiesSlot reports whether a reservation in this status blocks its
// time slot. Cancelled reservations free the slot.
func (s Status) OccupiesSlot() bool {
	return s == StatusConfirmed || s == StatusCompleted
}

// occupyingStatuses lists the statuses that block a time slot
var occupyingStatuses = []string{string(StatusConfirmed), string(StatusCompleted)}

// DefaultPaymentMethod is recorded when a reservation names none
const DefaultPaymentMethod = "pending"

// Court is a bookable court in a tenant
type Court struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Reservation books a court for a time range
type Reservation struct {
	ID            string     `json:"id"`
	CourtID       string     `json:"courtId"`
	CourtName     string     `json:"courtName,omitempty"`
	CourtType     string     `json:"courtType,omitempty"`
	Name          *string    `json:"name,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       time.Time  `json:"endTime"`
	Status        Status     `json:"status"`
	PaymentMethod string     `json:"paymentMethod"`
	IsRecurring   bool       `json:"isRecurring"`
	RecurrenceEnd *time.Time `json:"recurrenceEnd,omitempty"`
	PaidSessions  *string    `json:"paidSessions,omitempty"`
	PaymentNotes  *string    `json:"paymentNotes,omitempty"`
	CreatedBy     *string    `json:"createdBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Overlaps reports whether the half-open ranges [r.StartTime, r.EndTime)
// and [start, end) intersect
func (r Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && start.Before(r.EndTime)
}

// Event is a block of time spanning one or more courts
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	CourtIDs  []string  `json:"courtIds"`
	CreatedBy *string   `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateCourtRequest represents a request to add a court
type CreateCourtRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Validate checks the request
func (r *CreateCourtRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strings.TrimSpace(r.Type)
	if r.Name == "" {
		return apperrors.InvalidField("name", "is required")
	}
	if r.Type == "" {
		return apperrors.InvalidField("type", "is required")
	}
	return nil
}

// CreateReservationRequest represents a request to book a court
type CreateReservationRequest struct {
	CourtID       string     `json:"courtId"`
	Name          *string    `json:"name,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       time.Time  `json:"endTime"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
	IsRecurring   bool       `json:"isRecurring,omitempty"`
	RecurrenceEnd *time.Time `json:"recurrenceEnd,omitempty"`
	PaidSessions  *string    `json:"paidSessions,omitempty"`
	PaymentNotes  *string    `json:"paymentNotes,omitempty"`
}

// Validate checks the request and fills defaults
func (r *CreateReservationRequest) Validate() error {
	if r.CourtID == "" {
		return apperrors.InvalidField("courtId", "is required")
	}
	if _, err := uuid.Parse(r.CourtID); err != nil {
		return apperrors.InvalidField("courtId", "must be a valid UUID")
	}
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return apperrors.Validation("startTime and endTime are required")
	}
	if !r.StartTime.Before(r.EndTime) {
		return apperrors.Validation("startTime must be before endTime")
	}
	if r.RecurrenceEnd != nil && r.RecurrenceEnd.Before(r.StartTime) {
		return apperrors.InvalidField("recurrenceEnd", "must not be before startTime")
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = DefaultPaymentMethod
	}
	return nil
}

// ReservationFilter narrows a reservation listing. From and To bound the
// start time inclusively.
type ReservationFilter struct {
	From    *time.Time
	To      *time.Time
	CourtID string
}

// CreateEventRequest represents a request to schedule an event
type CreateEventRequest struct {
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	CourtIDs  []string  `json:"courtIds"`
}

// Validate checks the request
func (r *CreateEventRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return apperrors.InvalidField("name", "is required")
	}
	if r.Date.IsZero() || r.StartTime.IsZero() || r.EndTime.IsZero() {
		return apperrors.Validation("date, startTime and endTime are required")
	}
	if !r.StartTime.Before(r.EndTime) {
		return apperrors.Validation("startTime must be before endTime")
	}
	if len(r.CourtIDs) == 0 {
		return apperrors.InvalidField("courtIds", "must name at least one court")
	}
	for _, id := range r.CourtIDs {
		if _, err := uuid.Parse(id); err != nil {
			return apperrors.InvalidField("courtIds", "must contain valid UUIDs")
		}
	}
	return nil
}
