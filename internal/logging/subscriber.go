package logging

import "github.com/rs/zerolog"

// EventSubscriber adapts logger to an obsv.Bus subscriber, logging every
// published event at a level derived from its type — the log-based
// counterpart of logger_observer.go's LogEvent-per-ExecutionObserver-
// callback approach, generalized to this engine's flat (type, payload)
// event shape so one function handles every event kind instead of one
// method per kind.
func EventSubscriber(logger zerolog.Logger) func(eventType string, payload map[string]any) {
	return func(eventType string, payload map[string]any) {
		event := logger.WithLevel(levelFor(eventType, payload))
		for k, v := range payload {
			event = event.Interface(k, v)
		}
		event.Msg(eventType)
	}
}

// levelFor inspects both the event type and, for the status-carrying
// workflow:finish event, its payload — adapter.BaseAdapter always
// publishes "workflow:finish" and distinguishes completed/failed/
// cancelled via payload["status"] rather than separate event types.
func levelFor(eventType string, payload map[string]any) zerolog.Level {
	switch eventType {
	case "node:error", "job:failed":
		return zerolog.ErrorLevel
	case "node:retry", "node:fallback":
		return zerolog.WarnLevel
	case "context:change":
		return zerolog.DebugLevel
	case "workflow:finish":
		if status, _ := payload["status"].(string); status == "failed" {
			return zerolog.ErrorLevel
		}
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
