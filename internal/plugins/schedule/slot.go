package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Slot is one weekly class occurrence: a weekday (Monday=1 through
// Sunday=7) and an inclusive range of class periods (1 through 13).
type Slot struct {
	Day   int `json:"day"`
	First int `json:"first"`
	Last  int `json:"last"`
}

var dayNames = [8]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (s Slot) String() string {
	return fmt.Sprintf("%s(%d-%d)", dayNames[s.Day], s.First, s.Last)
}

// slotPattern matches one "day(first,last)" or "day(period)" fragment of a
// timetable expression, e.g. "3(1,2)" in "3(1,2),5(6,7)".
var slotPattern = regexp.MustCompile(`([1-7])\((1[0-3]|[1-9])(?:,\s*(1[0-3]|[1-9]))*\)`)

// ParseSlots parses a timetable expression of comma-joined fragments in the
// registrar's notation, e.g. "3(1,2),5(6,7)" for Wednesday periods 1-2 and
// Friday periods 6-7.
func ParseSlots(expr string) ([]Slot, error) {
	matches := slotPattern.FindAllStringSubmatch(expr, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("invalid time format: %s", expr)
	}

	slots := make([]Slot, 0, len(matches))
	for _, m := range matches {
		day, _ := strconv.Atoi(m[1])
		first, _ := strconv.Atoi(m[2])
		last := first
		if m[3] != "" {
			last, _ = strconv.Atoi(m[3])
		}
		if first > last {
			return nil, fmt.Errorf("invalid period range %d-%d in %s", first, last, expr)
		}
		slots = append(slots, Slot{Day: day, First: first, Last: last})
	}
	return slots, nil
}

// formatSlots renders slots for replies, e.g. "Wed(1-2), Fri(6-7)".
func formatSlots(slots []Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}
