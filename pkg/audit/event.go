// Package audit records one event per device sync in a JSON-lines file.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/swsync-network/swsync/pkg/model"
)

// Event represents one sync or plan of a device
type Event struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id,omitempty"` // shared by every device of one invocation
	Timestamp   time.Time     `json:"timestamp"`
	User        string        `json:"user"`
	Device      string        `json:"device"`
	Operation   EventType     `json:"operation"`
	Source      string        `json:"source,omitempty"` // where the running config came from
	Changes     []Change      `json:"changes"`
	Missing     []string      `json:"missing,omitempty"`
	Unmodelled  []string      `json:"unmodelled,omitempty"`
	Rejected    []string      `json:"rejected,omitempty"` // NetBox interfaces whose block failed to parse
	ParseErrors []string      `json:"parse_errors,omitempty"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	ExecuteMode bool          `json:"execute_mode"` // true if -x was used
	DryRun      bool          `json:"dry_run"`
	Duration    time.Duration `json:"duration"`
}

// Change summarizes one interface update.
type Change struct {
	Interface string   `json:"interface"`
	ID        int      `json:"id"`
	Fields    []string `json:"fields"`
	Summary   string   `json:"summary"`
}

// ChangesFrom summarizes change operations.
func ChangesFrom(ops []*model.ChangeOperation) []Change {
	changes := make([]Change, 0, len(ops))
	for _, op := range ops {
		changes = append(changes, Change{
			Interface: op.Interface,
			ID:        op.ID,
			Fields:    op.Fields(),
			Summary:   op.String(),
		})
	}
	return changes
}

// EventType categorizes audit events
type EventType string

const (
	EventTypePlan EventType = "plan"
	EventTypeSync EventType = "sync"
)

// Severity indicates the importance of an audit event
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NewEvent creates a new audit event
func NewEvent(user, device string, op EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: op,
		Changes:   []Change{},
	}
}

// WithRunID sets the run id
func (e *Event) WithRunID(id string) *Event {
	e.RunID = id
	return e
}

// WithSource sets the running-config source
func (e *Event) WithSource(source string) *Event {
	e.Source = source
	return e
}

// WithChanges sets the changes
func (e *Event) WithChanges(ops []*model.ChangeOperation) *Event {
	e.Changes = ChangesFrom(ops)
	return e
}

// WithUnmatched records interfaces present on only one side
func (e *Event) WithUnmatched(missing, unmodelled []string) *Event {
	e.Missing = missing
	e.Unmodelled = unmodelled
	return e
}

// WithRejected records NetBox interfaces left alone because their block
// failed to parse
func (e *Event) WithRejected(names []string) *Event {
	e.Rejected = names
	return e
}

// WithParseErrors records blocks the parser rejected
func (e *Event) WithParseErrors(errs []error) *Event {
	e.ParseErrors = nil
	for _, err := range errs {
		e.ParseErrors = append(e.ParseErrors, err.Error())
	}
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithExecuteMode marks if execute mode was used
func (e *Event) WithExecuteMode(execute bool) *Event {
	e.ExecuteMode = execute
	e.DryRun = !execute
	return e
}

// Severity derives the event severity: failures are errors, parse errors
// are warnings.
func (e *Event) Severity() Severity {
	switch {
	case !e.Success:
		return SeverityError
	case len(e.ParseErrors) > 0:
		return SeverityWarning
	}
	return SeverityInfo
}

// HasInterface reports whether any change touches iface.
func (e *Event) HasInterface(iface string) bool {
	for _, c := range e.Changes {
		if c.Interface == iface {
			return true
		}
	}
	return false
}
