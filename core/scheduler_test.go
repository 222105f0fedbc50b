package core

import "testing"

func TestSchedulerDispatchOrder(t *testing.T) {
	var sched Scheduler
	var fired []int

	mkTimer := func(id int, wake uint32) *Timer {
		timer := &Timer{WakeTime: wake}
		timer.Handler = func(*Timer) uint8 {
			fired = append(fired, id)
			return SF_DONE
		}
		return timer
	}

	// Schedule out of order
	sched.Schedule(mkTimer(2, 200))
	sched.Schedule(mkTimer(0, 50))
	sched.Schedule(mkTimer(1, 100))

	sched.Dispatch(300)

	if len(fired) != 3 {
		t.Fatalf("Expected 3 timers fired, got %d", len(fired))
	}
	for i, id := range fired {
		if id != i {
			t.Errorf("Fire order wrong: position %d got timer %d", i, id)
		}
	}
}

func TestSchedulerDispatchStopsAtNow(t *testing.T) {
	var sched Scheduler
	fired := 0

	early := &Timer{WakeTime: 100, Handler: func(*Timer) uint8 { fired++; return SF_DONE }}
	late := &Timer{WakeTime: 500, Handler: func(*Timer) uint8 { fired++; return SF_DONE }}
	sched.Schedule(early)
	sched.Schedule(late)

	sched.Dispatch(100)
	if fired != 1 {
		t.Errorf("Expected only the due timer to fire, fired=%d", fired)
	}

	wake, ok := sched.NextWake()
	if !ok || wake != 500 {
		t.Errorf("Expected next wake 500, got %d (ok=%v)", wake, ok)
	}
}

func TestSchedulerEqualWakeTimesFIFO(t *testing.T) {
	var sched Scheduler
	var fired []int

	for i := 0; i < 4; i++ {
		id := i
		sched.Schedule(&Timer{
			WakeTime: 1000,
			Handler: func(*Timer) uint8 {
				fired = append(fired, id)
				return SF_DONE
			},
		})
	}

	sched.Dispatch(1000)

	for i, id := range fired {
		if id != i {
			t.Fatalf("Equal wake times not FIFO: got order %v", fired)
		}
	}
}

func TestSchedulerReschedule(t *testing.T) {
	var sched Scheduler
	count := 0

	timer := &Timer{WakeTime: 10}
	timer.Handler = func(tm *Timer) uint8 {
		count++
		if count >= 3 {
			return SF_DONE
		}
		tm.WakeTime += 10
		return SF_RESCHEDULE
	}
	sched.Schedule(timer)

	sched.Dispatch(100)

	if count != 3 {
		t.Errorf("Expected 3 firings via reschedule, got %d", count)
	}
	if _, ok := sched.NextWake(); ok {
		t.Error("Scheduler should be empty after final SF_DONE")
	}
}

func TestSchedulerRemove(t *testing.T) {
	var sched Scheduler
	fired := 0

	keep := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 { fired++; return SF_DONE }}
	drop := &Timer{WakeTime: 20, Handler: func(*Timer) uint8 { fired++; return SF_DONE }}
	sched.Schedule(keep)
	sched.Schedule(drop)

	sched.Remove(drop)
	// Removing a timer that is not scheduled must be harmless
	sched.Remove(drop)

	sched.Dispatch(100)

	if fired != 1 {
		t.Errorf("Expected only the kept timer to fire, fired=%d", fired)
	}
}

func TestTickLessWraparound(t *testing.T) {
	cases := []struct {
		a, b uint32
		want bool
	}{
		{0, 1, true},
		{1, 0, false},
		{5, 5, false},
		// Near the wrap point, the later tick is numerically smaller
		{0xFFFFFF00, 0x00000010, true},
		{0x00000010, 0xFFFFFF00, false},
	}

	for _, tc := range cases {
		if got := tickLess(tc.a, tc.b); got != tc.want {
			t.Errorf("tickLess(0x%08X, 0x%08X) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSchedulerDispatchAcrossWrap(t *testing.T) {
	var sched Scheduler
	fired := false

	// Wake time just past the counter wrap
	sched.Schedule(&Timer{
		WakeTime: 0x00000020,
		Handler:  func(*Timer) uint8 { fired = true; return SF_DONE },
	})

	// Not due yet while the counter is still below the wrap
	sched.Dispatch(0xFFFFFFF0)
	if fired {
		t.Fatal("Timer fired before the wrap")
	}

	sched.Dispatch(0x00000030)
	if !fired {
		t.Error("Timer did not fire after the wrap")
	}
}
