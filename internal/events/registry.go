package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// adventure
	"adventure.validated": {},
	"adventure.rejected":  {},
	"adventure.saved":     {},

	// attempt
	"attempt.started":   {},
	"attempt.submitted": {},
	"attempt.advanced":  {},
	"attempt.held":      {},
	"attempt.completed": {},
	"attempt.stale":     {},
	"attempt.rejected":  {},

	// judge
	"judge.failed": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
