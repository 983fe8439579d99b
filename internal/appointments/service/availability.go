package service

import "time"

// interval is a half-open time range [start, end).
type interval struct {
	start time.Time
	end   time.Time
}

// overlaps is the half-open interval test: touching boundaries do not
// collide, so a slot ending exactly when an appointment starts is free.
func overlaps(a, b interval) bool {
	return a.start.Before(b.end) && a.end.After(b.start)
}

// slotsForWindow walks the slot grid and keeps every candidate whose
// booking interval fits inside the operating window and collides with no
// busy interval. Returns start times formatted as HH:MM.
func slotsForWindow(windowStart, windowEnd time.Time, step, duration time.Duration, busy []interval) []string {
	slots := make([]string, 0)
	for start := windowStart; !start.Add(duration).After(windowEnd); start = start.Add(step) {
		candidate := interval{start: start, end: start.Add(duration)}
		free := true
		for _, b := range busy {
			if overlaps(candidate, b) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, start.Format("15:04"))
		}
	}
	return slots
}
