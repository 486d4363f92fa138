package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// SWITCHER EVENTS
// =============================================================================

// ApplyReason says why a mode was applied.
type ApplyReason string

const (
	ReasonSchedule ApplyReason = "schedule"
	ReasonForce    ApplyReason = "force"
	ReasonPreview  ApplyReason = "preview"
	ReasonRevert   ApplyReason = "revert"
)

type ModeAppliedPayload struct {
	Period   string      `json:"period"`
	Mode     string      `json:"mode"`
	Previous string      `json:"previous,omitempty"`
	Reason   ApplyReason `json:"reason"`
	Source   string      `json:"source,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func (ModeAppliedPayload) EventType() EventType { return EventModeApplied }

type ScheduleEvaluatedPayload struct {
	Period     string        `json:"period"`
	Mode       string        `json:"mode"`
	Source     string        `json:"source"`
	DayStart   string        `json:"day_start,omitempty"`
	NightStart string        `json:"night_start,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

func (ScheduleEvaluatedPayload) EventType() EventType { return EventScheduleEvaluated }

type ScheduleDegradedPayload struct {
	Reasons []string `json:"reasons"`
	Source  string   `json:"source"`
}

func (ScheduleDegradedPayload) EventType() EventType { return EventScheduleDegraded }

type ScheduleToggledPayload struct {
	Enabled bool `json:"enabled"`
}

func (ScheduleToggledPayload) EventType() EventType { return EventScheduleToggled }

// =============================================================================
// COMMAND / CONFIG EVENTS
// =============================================================================

type CommandExecutedPayload struct {
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
}

func (CommandExecutedPayload) EventType() EventType { return EventCommandExecuted }

type ConfigReloadedPayload struct {
	Path string `json:"path"`
}

func (ConfigReloadedPayload) EventType() EventType { return EventConfigReloaded }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventWithRequest tags the event with the request that caused it.
func NewTypedEventWithRequest(source EventSource, payload EventPayload, requestID string) Event {
	e := NewTypedEvent(source, payload)
	e.RequestID = requestID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

// ExtractPayload decodes e.Payload into T. ok is false when the event is
// of a different type or the payload does not decode.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetModeAppliedPayload(e Event) (ModeAppliedPayload, bool) {
	return ExtractPayload[ModeAppliedPayload](e)
}

func GetScheduleEvaluatedPayload(e Event) (ScheduleEvaluatedPayload, bool) {
	return ExtractPayload[ScheduleEvaluatedPayload](e)
}

func GetScheduleDegradedPayload(e Event) (ScheduleDegradedPayload, bool) {
	return ExtractPayload[ScheduleDegradedPayload](e)
}
