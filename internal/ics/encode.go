package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"termcal/internal/model"
)

const productID = "-//termcal//timetable rollover//EN"

// Encode serializes occurrences as a VCALENDAR with one VEVENT per
// occurrence. Each VEVENT gets a UID derived from the occurrence's UID and
// start so that rolled-over instances of a recurring event stay distinct.
func Encode(occurrences []model.Occurrence, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, occ := range occurrences {
		uid := fmt.Sprintf("%s-%s", occ.UID, occ.Start.UTC().Format("20060102T150405Z"))
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(stamp)
		if occ.AllDay {
			ev.SetAllDayStartAt(occ.Start)
			ev.SetAllDayEndAt(occ.End)
		} else {
			ev.SetStartAt(occ.Start)
			ev.SetEndAt(occ.End)
		}
		if occ.Summary != "" {
			ev.SetSummary(occ.Summary)
		}
		if occ.Description != "" {
			ev.SetDescription(occ.Description)
		}
		if occ.Location != "" {
			ev.SetLocation(occ.Location)
		}
	}

	return cal.Serialize()
}

// WriteRolledOver writes occurrences to w as an ICS document.
func WriteRolledOver(w io.Writer, occurrences []model.Occurrence, stamp time.Time) error {
	_, err := io.WriteString(w, Encode(occurrences, stamp))
	return err
}
