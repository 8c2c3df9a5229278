package model

import (
	"fmt"
	"strings"
	"time"
)

const SlotLayout = "15:04"

// ParseSlots splits a comma-separated list of HH:MM times of day. Blank
// entries are skipped. Slots come back zero-padded ("9:05" becomes "09:05")
// so they compare equal to a time formatted with SlotLayout.
func ParseSlots(raw string) ([]string, error) {
	var slots []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hm, err := time.Parse(SlotLayout, part)
		if err != nil {
			return nil, fmt.Errorf("invalid time of day %q", part)
		}
		slots = append(slots, hm.Format(SlotLayout))
	}
	return slots, nil
}

// SlotOn returns the given HH:MM slot on the calendar day of t.
func SlotOn(t time.Time, slot string) (time.Time, error) {
	hm, err := time.Parse(SlotLayout, slot)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q", slot)
	}
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), hm.Hour(), hm.Minute(), 0, 0, time.Local), nil
}
