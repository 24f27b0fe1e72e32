package domain

// Capacity returns max_participants + overbooking_limit. ok is false when the event is unbounded.
func Capacity(e *Event) (capacity int, ok bool) {
	if e == nil || e.MaxParticipants == nil {
		return 0, false
	}
	return *e.MaxParticipants + e.OverbookingLimit, true
}

// AtCapacity reports whether no further attending admissions are permitted for the event
// given its current attending count.
func AtCapacity(e *Event, attendingCount int) bool {
	capacity, ok := Capacity(e)
	if !ok {
		return false
	}
	return attendingCount >= capacity
}

// RemainingCapacity returns how many admissions are left, never negative. Nil when unbounded.
func RemainingCapacity(e *Event, attendingCount int) *int {
	capacity, ok := Capacity(e)
	if !ok {
		return nil
	}
	left := capacity - attendingCount
	if left < 0 {
		left = 0
	}
	return &left
}

// Admission is the running state of an event's attending count and waitlist tail.
// Bulk imports thread one Admission through the whole batch instead of re-querying per row.
type Admission struct {
	Event          *Event
	AttendingCount int
	MaxPosition    int
}

// NewAdmission seeds an Admission from freshly queried counters.
func NewAdmission(e *Event, attendingCount, maxPosition int) *Admission {
	return &Admission{Event: e, AttendingCount: attendingCount, MaxPosition: maxPosition}
}

// Admit applies the admission rule to a requested status and advances the counters.
// A request for attending at capacity is redirected to waitlisted with the next position.
// A direct request for waitlisted also takes the next position.
func (a *Admission) Admit(requested ParticipantStatus) (status ParticipantStatus, position *int, waitlisted bool) {
	switch requested {
	case StatusAttending:
		if AtCapacity(a.Event, a.AttendingCount) {
			a.MaxPosition++
			pos := a.MaxPosition
			return StatusWaitlisted, &pos, true
		}
		a.AttendingCount++
		return StatusAttending, nil, false
	case StatusWaitlisted:
		a.MaxPosition++
		pos := a.MaxPosition
		return StatusWaitlisted, &pos, false
	default:
		return requested, nil, false
	}
}
