package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLogger keeps audit events in process. It backs development servers
// running without a control-plane database and tests that assert on the trail.
type MemoryLogger struct {
	mu     sync.RWMutex
	events []*AuditEvent
}

// NewMemoryLogger creates an empty in-memory audit logger
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log stores a copy of the event
func (l *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	stored := *event

	l.mu.Lock()
	l.events = append(l.events, &stored)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLogger) LogAuthorization(ctx context.Context, eventType EventType, actorID *string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	return l.Log(ctx, authorizationEvent(ctx, eventType, actorID, resourceType, resourceID, status, message))
}

func (l *MemoryLogger) LogDataMutation(ctx context.Context, eventType EventType, actorID *string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	return l.Log(ctx, dataMutationEvent(ctx, eventType, actorID, resourceType, resourceID, changes, message))
}

func (l *MemoryLogger) LogAdminAction(ctx context.Context, eventType EventType, actorID *string, organizationID *string, message string) error {
	return l.Log(ctx, adminActionEvent(ctx, eventType, actorID, organizationID, message))
}

func (l *MemoryLogger) LogProvisioning(ctx context.Context, eventType EventType, slug, module string, err error) error {
	return l.Log(ctx, provisioningEvent(ctx, eventType, slug, module, err))
}

// Events returns every stored event in insertion order
func (l *MemoryLogger) Events() []*AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}

// EventsOfType returns the stored events with the given type
func (l *MemoryLogger) EventsOfType(eventType EventType) []*AuditEvent {
	return l.filter(SearchFilter{EventTypes: []EventType{eventType}})
}

// Search applies filter to the stored events, newest first
func (l *MemoryLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	matched := l.filter(filter)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*AuditEvent{}, nil
		}
		matched = matched[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (l *MemoryLogger) filter(filter SearchFilter) []*AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*AuditEvent, 0, len(l.events))
	for _, e := range l.events {
		if matches(e, filter) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e *AuditEvent, f SearchFilter) bool {
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
		return false
	}
	if f.OrganizationID != nil && (e.OrganizationID == nil || *e.OrganizationID != *f.OrganizationID) {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, et := range f.EventTypes {
			if e.EventType == et {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	return true
}

// Purge drops events recorded before the cutoff
func (l *MemoryLogger) Purge(ctx context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[:0]
	var purged int64
	for _, e := range l.events {
		if e.Timestamp.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	l.events = kept
	return purged, nil
}

func (l *MemoryLogger) Close() error {
	return nil
}
