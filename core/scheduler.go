package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

// Handler return values
const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// tickLess reports whether tick a is before tick b. The signed
// difference keeps comparisons correct across counter wrap as long as
// the two ticks are within 2^31 of each other.
func tickLess(a, b uint32) bool {
	return int32(a-b) < 0
}

// Scheduler is a sorted singly linked list of pending timers.
// Each engine instance owns its own scheduler; there are no package
// globals in the timer path.
type Scheduler struct {
	head *Timer
}

// Schedule adds a timer to the schedule. Must not be called from a
// timer handler; handlers reschedule by returning SF_RESCHEDULE or by
// calling insert directly, since Dispatch already holds the mask.
func (s *Scheduler) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.insert(t)
}

// insert places a timer in sorted order by WakeTime. Equal wake times
// keep insertion order, so ties dispatch first-scheduled-first.
// Caller holds the interrupt mask.
func (s *Scheduler) insert(t *Timer) {
	if s.head == nil || tickLess(t.WakeTime, s.head.WakeTime) {
		t.Next = s.head
		s.head = t
		return
	}

	current := s.head
	for current.Next != nil && !tickLess(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Remove unlinks a timer if it is pending. Safe to call on a timer
// that is not in the list.
func (s *Scheduler) Remove(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.remove(t)
}

// remove unlinks a timer. Caller holds the interrupt mask.
func (s *Scheduler) remove(t *Timer) {
	if s.head == nil {
		return
	}
	if s.head == t {
		s.head = t.Next
		t.Next = nil
		return
	}

	for current := s.head; current.Next != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// Dispatch runs every timer due at or before now. Handlers run with
// interrupts masked; a handler that returns SF_RESCHEDULE is
// re-inserted at its updated WakeTime.
func (s *Scheduler) Dispatch(now uint32) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for s.head != nil && !tickLess(now, s.head.WakeTime) {
		timer := s.head
		s.head = timer.Next
		timer.Next = nil

		result := timer.Handler(timer)

		if result == SF_RESCHEDULE {
			s.insert(timer)
		}
	}
}

// NextWake returns the wake time of the earliest pending timer.
func (s *Scheduler) NextWake() (uint32, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.head == nil {
		return 0, false
	}
	return s.head.WakeTime, true
}
