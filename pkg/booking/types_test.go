package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
)

const courtUUID = "0b5e8f3c-7a21-4d8e-9c4f-2a6b1d3e5f70"

var base = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func TestReservation_Overlaps(t *testing.T) {
	r := Reservation{StartTime: base, EndTime: base.Add(time.Hour)}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"same range", base, base.Add(time.Hour), true},
		{"inside", base.Add(15 * time.Minute), base.Add(45 * time.Minute), true},
		{"covers", base.Add(-time.Hour), base.Add(2 * time.Hour), true},
		{"tail overlap", base.Add(30 * time.Minute), base.Add(90 * time.Minute), true},
		{"back to back after", base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"back to back before", base.Add(-time.Hour), base, false},
		{"disjoint", base.Add(3 * time.Hour), base.Add(4 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Overlaps(tt.start, tt.end))
		})
	}
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusConfirmed.Valid())
	assert.False(t, Status("pending").Valid())

	assert.True(t, StatusConfirmed.OccupiesSlot())
	assert.True(t, StatusCompleted.OccupiesSlot())
	assert.False(t, StatusCancelled.OccupiesSlot())
}

func TestCreateReservationRequest_Validate(t *testing.T) {
	valid := func() CreateReservationRequest {
		return CreateReservationRequest{CourtID: courtUUID, StartTime: base, EndTime: base.Add(time.Hour)}
	}

	req := valid()
	assert.NoError(t, req.Validate())
	assert.Equal(t, DefaultPaymentMethod, req.PaymentMethod)

	req = valid()
	req.PaymentMethod = "cash"
	assert.NoError(t, req.Validate())
	assert.Equal(t, "cash", req.PaymentMethod)

	before := base.Add(-24 * time.Hour)
	tests := []struct {
		name   string
		mutate func(*CreateReservationRequest)
	}{
		{"missing court", func(r *CreateReservationRequest) { r.CourtID = "" }},
		{"malformed court", func(r *CreateReservationRequest) { r.CourtID = "court-1" }},
		{"missing start", func(r *CreateReservationRequest) { r.StartTime = time.Time{} }},
		{"empty range", func(r *CreateReservationRequest) { r.EndTime = r.StartTime }},
		{"inverted range", func(r *CreateReservationRequest) { r.EndTime = r.StartTime.Add(-time.Minute) }},
		{"recurrence before start", func(r *CreateReservationRequest) { r.RecurrenceEnd = &before }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			assert.True(t, apperrors.IsValidation(req.Validate()))
		})
	}
}

func TestCreateCourtRequest_Validate(t *testing.T) {
	req := CreateCourtRequest{Name: "  Cancha 3 ", Type: "padel"}
	assert.NoError(t, req.Validate())
	assert.Equal(t, "Cancha 3", req.Name)

	assert.Error(t, (&CreateCourtRequest{Type: "padel"}).Validate())
	assert.Error(t, (&CreateCourtRequest{Name: "Cancha 3"}).Validate())
}

func TestCreateEventRequest_Validate(t *testing.T) {
	valid := func() CreateEventRequest {
		return CreateEventRequest{Name: "Torneo", Date: base, StartTime: base, EndTime: base.Add(4 * time.Hour), CourtIDs: []string{courtUUID}}
	}

	req := valid()
	assert.NoError(t, req.Validate())

	req = valid()
	req.CourtIDs = nil
	assert.Error(t, req.Validate())

	req = valid()
	req.CourtIDs = []string{"nope"}
	assert.Error(t, req.Validate())

	req = valid()
	req.EndTime = req.StartTime
	assert.Error(t, req.Validate())

	req = valid()
	req.Name = " "
	assert.Error(t, req.Validate())
}
