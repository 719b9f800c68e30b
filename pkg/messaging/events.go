package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventPunchRecorded     = "attendance.punch.recorded"
	EventPunchCorrected    = "attendance.punch.corrected"
	EventTimesheetComputed = "attendance.timesheet.computed"
)

// ExchangeAttendanceEvents is the topic exchange attendance events go to
const ExchangeAttendanceEvents = "attendance.events"

// Event is the envelope every message is wrapped in
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	TenantID      string          `json:"tenant_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// PunchRecordedEvent is published after a punch is persisted
type PunchRecordedEvent struct {
	RecordID      string    `json:"record_id"`
	EmployeeID    string    `json:"employee_id"`
	WorkDate      string    `json:"work_date"`
	Event         string    `json:"event"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	At            time.Time `json:"at"`
	BreakInferred bool      `json:"break_inferred"`
	Warnings      []string  `json:"warnings,omitempty"`
}

// PunchCorrectedEvent is published after an administrative correction or deletion
type PunchCorrectedEvent struct {
	RecordID    string `json:"record_id"`
	EmployeeID  string `json:"employee_id"`
	WorkDate    string `json:"work_date"`
	Action      string `json:"action"`
	Reason      string `json:"reason"`
	CorrectedBy string `json:"corrected_by"`
}

// TimesheetComputedEvent is published when a monthly timesheet is computed.
// Notification services read Faltas to warn about unexcused absences.
type TimesheetComputedEvent struct {
	EmployeeID      string   `json:"employee_id"`
	Year            int      `json:"year"`
	Month           int      `json:"month"`
	WorkedMinutes   int      `json:"worked_minutes"`
	DiasTrabalhados int      `json:"dias_trabalhados"`
	TotalFaltas     int      `json:"total_faltas"`
	Faltas          []string `json:"faltas"`
}
