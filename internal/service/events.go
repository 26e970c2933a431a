package service

// EventType represents the type of a command event
type EventType int

const (
	EventAdvertiseCommand EventType = iota
	EventHibernateCommand
)

func (t EventType) String() string {
	switch t {
	case EventAdvertiseCommand:
		return "advertise"
	case EventHibernateCommand:
		return "hibernate"
	default:
		return "unknown"
	}
}

// Event is a command received outside the main loop, handled on the next
// Tick
type Event struct {
	Type EventType
}

// parseCommand maps a command payload to its event type
func parseCommand(command string) (EventType, bool) {
	switch command {
	case "advertise":
		return EventAdvertiseCommand, true
	case "hibernate":
		return EventHibernateCommand, true
	default:
		return 0, false
	}
}
