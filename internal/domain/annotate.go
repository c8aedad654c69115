package domain

// Annotate attaches a fresh distance from observer to every event. Output order
// matches input order and nothing is filtered: events outside any radius must
// stay available for a later radius change.
func Annotate(events []Event, observer *Point) []AnnotatedEvent {
	out := make([]AnnotatedEvent, len(events))
	for i, e := range events {
		out[i] = AnnotatedEvent{Event: e}
		if observer == nil {
			continue
		}
		pos, ok := e.Coordinates()
		if !ok {
			continue
		}
		d := Distance(*observer, pos)
		out[i].DistanceKm = &d
	}
	return out
}

// Reannotate recomputes distances for already annotated events under a new
// observer. Previous distances are discarded, never adjusted.
func Reannotate(events []AnnotatedEvent, observer *Point) []AnnotatedEvent {
	return Annotate(Events(events), observer)
}

// Events strips annotations, returning the raw events in order.
func Events(annotated []AnnotatedEvent) []Event {
	out := make([]Event, len(annotated))
	for i := range annotated {
		out[i] = annotated[i].Event
	}
	return out
}
