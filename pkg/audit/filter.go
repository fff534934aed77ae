package audit

import "time"

// Filter selects audit events. Zero-valued fields match everything.
type Filter struct {
	Device      string
	User        string
	Operation   EventType
	Interface   string // canonical name of a changed interface
	RunID       string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	ChangedOnly bool

	// Limit and Offset count back from the newest match: Limit 10 yields
	// the ten most recent events, Offset 10 skips them.
	Limit  int
	Offset int
}

// Match reports whether e satisfies every criterion set in f.
func (f Filter) Match(e *Event) bool {
	switch {
	case f.Device != "" && e.Device != f.Device,
		f.User != "" && e.User != f.User,
		f.Operation != "" && e.Operation != f.Operation,
		f.RunID != "" && e.RunID != f.RunID:
		return false
	case f.Interface != "" && !e.HasInterface(f.Interface):
		return false
	case !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime),
		!f.EndTime.IsZero() && e.Timestamp.After(f.EndTime):
		return false
	case f.SuccessOnly && !e.Success,
		f.FailureOnly && e.Success,
		f.ChangedOnly && len(e.Changes) == 0:
		return false
	}
	return true
}

// page trims events, oldest first, to the window Offset and Limit select.
func (f Filter) page(events []*Event) []*Event {
	end := len(events) - max(f.Offset, 0)
	if end <= 0 {
		return nil
	}
	start := 0
	if f.Limit > 0 && end-f.Limit > 0 {
		start = end - f.Limit
	}
	return events[start:end]
}
