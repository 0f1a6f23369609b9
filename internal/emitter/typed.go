package emitter

// EventDef binds an Event name to a payload type T at compile time.
// Use with Listen and Fire for type-safe emissions.
type EventDef[T any] struct{ event Event }

// NewEventDef creates a typed event descriptor.
func NewEventDef[T any](event Event) EventDef[T] { return EventDef[T]{event: event} }

// Event returns the underlying event name.
func (d EventDef[T]) Event() Event { return d.event }

// Fire emits payload on the descriptor's event. If e is nil the call is a no-op.
func Fire[T any](e *Emitter, def EventDef[T], payload T) {
	e.Emit(def.event, payload)
}

// Listen subscribes fn to the descriptor's event. Emissions whose first
// argument is not a T are skipped.
func Listen[T any](e *Emitter, def EventDef[T], fn func(T)) *Subscription {
	return e.On(def.event, func(args ...any) {
		if len(args) == 0 {
			return
		}
		payload, ok := args[0].(T)
		if !ok {
			return
		}
		fn(payload)
	})
}
