package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenant"
)

// Store reads and writes booking data inside a tenant namespace
type Store interface {
	ListCourts(ctx context.Context, slug string) ([]Court, error)
	CreateCourt(ctx context.Context, slug string, actor *string, req CreateCourtRequest) (*Court, error)

	// DeleteCourt refuses with DeleteBlockedByActiveChildren while the court
	// has confirmed reservations
	DeleteCourt(ctx context.Context, slug, courtID string) error

	ListReservations(ctx context.Context, slug string, filter ReservationFilter) ([]Reservation, error)

	// CreateReservation refuses with TimeSlotConflict when the range
	// overlaps a confirmed or completed reservation on the same court
	CreateReservation(ctx context.Context, slug string, actor *string, req CreateReservationRequest) (*Reservation, error)
	SetReservationStatus(ctx context.Context, slug, id string, status Status) (*Reservation, error)

	ListEvents(ctx context.Context, slug string, from, to *time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, slug string, actor *string, req CreateEventRequest) (*Event, error)
}

// GatewayStore implements Store on the tenant gateway. Every query runs on
// a connection bound to the tenant namespace, so table names are unqualified.
type GatewayStore struct {
	gw *tenant.Gateway
}

// NewGatewayStore creates a store on gw
func NewGatewayStore(gw *tenant.Gateway) *GatewayStore {
	return &GatewayStore{gw: gw}
}

const courtColumns = `id, name, type, COALESCE(is_active, true), created_at, updated_at`

func scanCourt(row pgx.Row) (Court, error) {
	var c Court
	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ListCourts lists courts ordered by name
func (s *GatewayStore) ListCourts(ctx context.Context, slug string) ([]Court, error) {
	return tenant.Query(ctx, s.gw, slug, func(ctx context.Context, q tenant.Querier) ([]Court, error) {
		rows, err := q.Query(ctx, "SELECT "+courtColumns+" FROM courts ORDER BY name")
		if err != nil {
			return nil, apperrors.Classify(err, "failed to list courts")
		}
		defer rows.Close()

		courts := []Court{}
		for rows.Next() {
			c, err := scanCourt(rows)
			if err != nil {
				return nil, fmt.Errorf("failed to scan court: %w", err)
			}
			courts = append(courts, c)
		}
		return courts, apperrors.Classify(rows.Err(), "failed to list courts")
	})
}

// CreateCourt adds a court
func (s *GatewayStore) CreateCourt(ctx context.Context, slug string, actor *string, req CreateCourtRequest) (*Court, error) {
	return tenant.Query(ctx, s.gw, slug, func(ctx context.Context, q tenant.Querier) (*Court, error) {
		row := q.QueryRow(ctx, `
			INSERT INTO courts (name, type, created_by)
			VALUES ($1, $2, $3)
			RETURNING `+courtColumns, req.Name, req.Type, actor)
		c, err := scanCourt(row)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return nil, apperrors.Conflict(apperrors.CodeDuplicateCourt, fmt.Sprintf("court %s already exists", req.Name))
			}
			return nil, apperrors.Classify(err, "failed to create court")
		}
		return &c, nil
	})
}

// DeleteCourt deletes a court that has no confirmed reservations. The court
// row is locked so no reservation can be confirmed on it meanwhile.
func (s *GatewayStore) DeleteCourt(ctx context.Context, slug, courtID string) error {
	return s.gw.WithTenantTx(ctx, slug, func(ctx context.Context, tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, "SELECT id FROM courts WHERE id = $1 FOR UPDATE", courtID).Scan(&id)
		if postgres.IsNoRows(err) {
			return apperrors.NotFound("court", courtID)
		}
		if err != nil {
			return apperrors.Classify(err, "failed to lock court")
		}

		var active int
		err = tx.QueryRow(ctx,
			"SELECT COUNT(*) FROM court_reservations WHERE court_id = $1 AND status = $2",
			courtID, string(StatusConfirmed),
		).Scan(&active)
		if err != nil {
			return apperrors.Classify(err, "failed to count reservations")
		}
		if active > 0 {
			return apperrors.BusinessRule(apperrors.CodeDeleteBlockedByActiveChildren,
				fmt.Sprintf("court has %d confirmed reservation(s)", active))
		}

		if _, err := tx.Exec(ctx, "DELETE FROM courts WHERE id = $1", courtID); err != nil {
			return apperrors.Classify(err, "failed to delete court")
		}
		return nil
	})
}

const reservationColumns = `
	cr.id, cr.court_id, c.name, c.type, cr.name, cr.phone, cr.start_time, cr.end_time,
	cr.status, cr.payment_method, cr.is_recurring, cr.recurrence_end, cr.paid_sessions,
	cr.payment_notes, cr.created_by, cr.created_at, cr.updated_at`

func scanReservation(row pgx.Row) (Reservation, error) {
	var r Reservation
	var status string
	var payment *string
	var recurring *bool
	err := row.Scan(
		&r.ID, &r.CourtID, &r.CourtName, &r.CourtType, &r.Name, &r.Phone, &r.StartTime, &r.EndTime,
		&status, &payment, &recurring, &r.RecurrenceEnd, &r.PaidSessions,
		&r.PaymentNotes, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	r.Status = Status(status)
	if payment != nil {
		r.PaymentMethod = *payment
	}
	if recurring != nil {
		r.IsRecurring = *recurring
	}
	return r, err
}

// ListReservations lists reservations ordered by start time
func (s *GatewayStore) ListReservations(ctx context.Context, slug string, filter ReservationFilter) ([]Reservation, error) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.From != nil {
		add("cr.start_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("cr.start_time <= $%d", *filter.To)
	}
	if filter.CourtID != "" {
		add("cr.court_id = $%d", filter.CourtID)
	}

	query := "SELECT " + reservationColumns + " FROM court_reservations cr JOIN courts c ON c.id = cr.court_id"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY cr.start_time ASC"

	return tenant.Query(ctx, s.gw, slug, func(ctx context.Context, q tenant.Querier) ([]Reservation, error) {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return nil, apperrors.Classify(err, "failed to list reservations")
		}
		defer rows.Close()

		out := []Reservation{}
		for rows.Next() {
			r, err := scanReservation(rows)
			if err != nil {
				return nil, fmt.Errorf("failed to scan reservation: %w", err)
			}
			out = append(out, r)
		}
		return out, apperrors.Classify(rows.Err(), "failed to list reservations")
	})
}

// CreateReservation books a court. The court row is locked for the
// duration of the overlap check and insert, serializing bookings per court.
func (s *GatewayStore) CreateReservation(ctx context.Context, slug string, actor *string, req CreateReservationRequest) (*Reservation, error) {
	var created Reservation
	err := s.gw.WithTenantTx(ctx, slug, func(ctx context.Context, tx pgx.Tx) error {
		var active bool
		err := tx.QueryRow(ctx, "SELECT COALESCE(is_active, true) FROM courts WHERE id = $1 FOR UPDATE", req.CourtID).Scan(&active)
		if postgres.IsNoRows(err) {
			return apperrors.NotFound("court", req.CourtID)
		}
		if err != nil {
			return apperrors.Classify(err, "failed to lock court")
		}
		if !active {
			return apperrors.BusinessRule(apperrors.CodeCourtInactive, "court is not accepting reservations")
		}

		var conflicts int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM court_reservations
			WHERE court_id = $1
			  AND status = ANY($2)
			  AND start_time < $4
			  AND end_time > $3
		`, req.CourtID, occupyingStatuses, req.StartTime, req.EndTime).Scan(&conflicts)
		if err != nil {
			return apperrors.Classify(err, "failed to check time slot")
		}
		if conflicts > 0 {
			return apperrors.Conflict(apperrors.CodeTimeSlotConflict, "time slot conflict")
		}

		var id string
		err = tx.QueryRow(ctx, `
			INSERT INTO court_reservations (
				court_id, name, phone, start_time, end_time, status, payment_method,
				is_recurring, recurrence_end, paid_sessions, payment_notes, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`, req.CourtID, req.Name, req.Phone, req.StartTime, req.EndTime, string(StatusConfirmed),
			req.PaymentMethod, req.IsRecurring, req.RecurrenceEnd, req.PaidSessions, req.PaymentNotes, actor,
		).Scan(&id)
		if err != nil {
			return apperrors.Classify(err, "failed to create reservation")
		}

		created, err = scanReservation(tx.QueryRow(ctx,
			"SELECT "+reservationColumns+" FROM court_reservations cr JOIN courts c ON c.id = cr.court_id WHERE cr.id = $1", id))
		return apperrors.Classify(err, "failed to read reservation")
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// SetReservationStatus changes the status of a reservation. Confirming a
// cancelled reservation again is subject to the same overlap rule as a new
// booking.
func (s *GatewayStore) SetReservationStatus(ctx context.Context, slug, id string, status Status) (*Reservation, error) {
	var updated Reservation
	err := s.gw.WithTenantTx(ctx, slug, func(ctx context.Context, tx pgx.Tx) error {
		current, err := scanReservation(tx.QueryRow(ctx,
			"SELECT "+reservationColumns+" FROM court_reservations cr JOIN courts c ON c.id = cr.court_id WHERE cr.id = $1 FOR UPDATE OF cr", id))
		if postgres.IsNoRows(err) {
			return apperrors.NotFound("reservation", id)
		}
		if err != nil {
			return apperrors.Classify(err, "failed to read reservation")
		}

		if status.OccupiesSlot() && !current.Status.OccupiesSlot() {
			var conflicts int
			err = tx.QueryRow(ctx, `
				SELECT COUNT(*) FROM court_reservations
				WHERE court_id = $1 AND id <> $2
				  AND status = ANY($3)
				  AND start_time < $5
				  AND end_time > $4
			`, current.CourtID, id, occupyingStatuses, current.StartTime, current.EndTime).Scan(&conflicts)
			if err != nil {
				return apperrors.Classify(err, "failed to check time slot")
			}
			if conflicts > 0 {
				return apperrors.Conflict(apperrors.CodeTimeSlotConflict, "time slot conflict")
			}
		}

		if _, err := tx.Exec(ctx,
			"UPDATE court_reservations SET status = $1, updated_at = now() WHERE id = $2",
			string(status), id,
		); err != nil {
			return apperrors.Classify(err, "failed to update reservation")
		}

		current.Status = status
		current.UpdatedAt = time.Now()
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListEvents lists events ordered by date and start time. From and To bound
// the event date inclusively.
func (s *GatewayStore) ListEvents(ctx context.Context, slug string, from, to *time.Time) ([]Event, error) {
	query := "SELECT id, name, date, start_time, end_time, court_ids, created_by, created_at FROM events"
	var args []any
	if from != nil && to != nil {
		query += " WHERE date >= $1 AND date <= $2"
		args = append(args, *from, *to)
	}
	query += " ORDER BY date ASC, start_time ASC"

	return tenant.Query(ctx, s.gw, slug, func(ctx context.Context, q tenant.Querier) ([]Event, error) {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return nil, apperrors.Classify(err, "failed to list events")
		}
		defer rows.Close()

		events := []Event{}
		for rows.Next() {
			var e Event
			var courtIDs []byte
			if err := rows.Scan(&e.ID, &e.Name, &e.Date, &e.StartTime, &e.EndTime, &courtIDs, &e.CreatedBy, &e.CreatedAt); err != nil {
				return nil, fmt.Errorf("failed to scan event: %w", err)
			}
			if err := json.Unmarshal(courtIDs, &e.CourtIDs); err != nil {
				return nil, fmt.Errorf("failed to decode court ids: %w", err)
			}
			events = append(events, e)
		}
		return events, apperrors.Classify(rows.Err(), "failed to list events")
	})
}

// CreateEvent schedules an event
func (s *GatewayStore) CreateEvent(ctx context.Context, slug string, actor *string, req CreateEventRequest) (*Event, error) {
	courtIDs, err := json.Marshal(req.CourtIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode court ids: %w", err)
	}

	return tenant.Query(ctx, s.gw, slug, func(ctx context.Context, q tenant.Querier) (*Event, error) {
		e := &Event{Name: req.Name, Date: req.Date, StartTime: req.StartTime, EndTime: req.EndTime, CourtIDs: req.CourtIDs, CreatedBy: actor}
		err := q.QueryRow(ctx, `
			INSERT INTO events (name, date, start_time, end_time, court_ids, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`, req.Name, req.Date, req.StartTime, req.EndTime, courtIDs, actor).Scan(&e.ID, &e.CreatedAt)
		if err != nil {
			return nil, apperrors.Classify(err, "failed to create event")
		}
		return e, nil
	})
}
