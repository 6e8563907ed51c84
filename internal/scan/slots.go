package scan

import (
	"fmt"
	"regexp"
)

const minutesPerDay = 24 * 60

var clockRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ParseClock converts an HH:MM 24-hour clock string to minutes from
// midnight.
func ParseClock(s string) (int, error) {
	if !clockRe.MatchString(s) {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	var h, m int
	fmt.Sscanf(s, "%d:%d", &h, &m)
	return h*60 + m, nil
}

// FormatClock converts minutes from midnight back to HH:MM, wrapping
// modulo 24 hours so values past midnight stay valid clock times.
func FormatClock(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// DeriveSlots computes the scan's bookable windows: exactly TotalSlots
// contiguous slots of Duration minutes, slot i starting at
// StartTime + (i-1)*Duration. Pure; the scan is never mutated and the
// result is recomputed on every request rather than cached.
func DeriveSlots(s *Scan) []Slot {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return nil
	}

	slots := make([]Slot, 0, s.TotalSlots)
	for i := 1; i <= s.TotalSlots; i++ {
		from := start + (i-1)*s.Duration
		slots = append(slots, Slot{
			Number:    i,
			StartTime: FormatClock(from),
			EndTime:   FormatClock(from + s.Duration),
		})
	}
	return slots
}

// SlotWindow returns the derived window for one slot number.
func SlotWindow(s *Scan, slotNumber int) (Slot, bool) {
	if slotNumber < 1 || slotNumber > s.TotalSlots {
		return Slot{}, false
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return Slot{}, false
	}
	from := start + (slotNumber-1)*s.Duration
	return Slot{
		Number:    slotNumber,
		StartTime: FormatClock(from),
		EndTime:   FormatClock(from + s.Duration),
	}, true
}
