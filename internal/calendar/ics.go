// Package calendar renders slots as an iCalendar feed.
package calendar

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"slotswap-backend/internal/model"
)

const productID = "-//slotswap//slot calendar//EN"

// UID returns the stable iCalendar UID of a slot.
func UID(e model.Event) string {
	return fmt.Sprintf("slot-%d@slotswap", e.ID)
}

// Build converts slots into a calendar. Slots that are offered or under
// negotiation are marked TENTATIVE.
func Build(name string, events []model.Event, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}

	for _, e := range events {
		ve := ical.NewComponent(ical.CompEvent)
		ve.Props.SetText(ical.PropUID, UID(e))
		ve.Props.SetText(ical.PropSummary, e.Title)
		ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeStart, e.StartTime.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, e.EndTime.UTC())
		ve.Props.SetText(ical.PropStatus, status(e.Status))
		ve.Props.SetText(ical.PropCategories, string(e.Status))
		if !e.UpdatedAt.IsZero() {
			ve.Props.SetDateTime(ical.PropLastModified, e.UpdatedAt.UTC())
		}
		cal.Children = append(cal.Children, ve)
	}
	return cal
}

func status(s model.EventStatus) string {
	if s == model.StatusBusy {
		return "CONFIRMED"
	}
	return "TENTATIVE"
}

// Write encodes the calendar for events to w.
func Write(w io.Writer, name string, events []model.Event, stamp time.Time) error {
	if err := ical.NewEncoder(w).Encode(Build(name, events, stamp)); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
