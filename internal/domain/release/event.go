package release

import (
	"errors"
	"fmt"
)

// UpdateEventName identifies update outcome events on the control panel.
const UpdateEventName = "device_client_updated"

// ErrInvalidEvent is returned when an event misses required fields.
var ErrInvalidEvent = errors.New("invalid update event")

// EventInfo is the body of an update outcome event.
type EventInfo struct {
	Status     string `json:"status"`
	OldVersion string `json:"old_ver"`
	NewVersion string `json:"new_ver"`
	IP         string `json:"ip"`
	Country    string `json:"country"`
	Arch       string `json:"arch"`
	OS         string `json:"os"`
}

// Event is an update outcome sent to the control panel.
type Event struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Info EventInfo `json:"info"`
}

// Validate checks the fields every consumer relies on.
func (e Event) Validate() error {
	switch {
	case e.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidEvent)
	case e.Info.Status != OutcomeSuccess && e.Info.Status != OutcomeFailed:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, e.Info.Status)
	case e.Info.NewVersion == "":
		return fmt.Errorf("%w: new version is required", ErrInvalidEvent)
	default:
		return nil
	}
}

// Fields flattens the event into a generic map.
func (e Event) Fields() map[string]any {
	return map[string]any{
		"id":   e.ID,
		"name": e.Name,
		"info": map[string]any{
			"status":  e.Info.Status,
			"old_ver": e.Info.OldVersion,
			"new_ver": e.Info.NewVersion,
			"ip":      e.Info.IP,
			"country": e.Info.Country,
			"arch":    e.Info.Arch,
			"os":      e.Info.OS,
		},
	}
}

// EventFromFields is the inverse of Fields. Unknown keys are ignored.
func EventFromFields(fields map[string]any) (Event, error) {
	info, _ := fields["info"].(map[string]any)
	if info == nil {
		return Event{}, fmt.Errorf("%w: info is required", ErrInvalidEvent)
	}

	event := Event{
		ID:   stringField(fields, "id"),
		Name: stringField(fields, "name"),
		Info: EventInfo{
			Status:     stringField(info, "status"),
			OldVersion: stringField(info, "old_ver"),
			NewVersion: stringField(info, "new_ver"),
			IP:         stringField(info, "ip"),
			Country:    stringField(info, "country"),
			Arch:       stringField(info, "arch"),
			OS:         stringField(info, "os"),
		},
	}

	return event, event.Validate()
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)

	return value
}
