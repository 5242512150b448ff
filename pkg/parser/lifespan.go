package parser

import (
	"fmt"
	"strings"

	"github.com/m-mizutani/kindred/pkg/model"
)

func toEvent(ev *rawEvent) model.Event {
	out := model.NewEvent()
	if ev == nil {
		return out
	}

	if d := ev.Date; d != nil {
		year, month, day := "yyyy", "mm", "dd"
		if d.Year != nil {
			year = fmt.Sprint(*d.Year)
		}
		if d.Month != nil {
			month = fmt.Sprintf("%02d", *d.Month)
		}
		if d.Day != nil {
			day = fmt.Sprintf("%02d", *d.Day)
		}
		out.Date = year + "-" + month + "-" + day
		out.Qualifier = qualifier(d.FormattedDate)
	}

	if loc := ev.Location; loc != nil {
		var parts []string
		if loc.City != nil {
			out.City = *loc.City
			parts = append(parts, *loc.City)
		}
		if loc.State != nil {
			out.State = *loc.State
			// pre-state territories often carry no country
			out.Country = *loc.State
			parts = append(parts, *loc.State)
		}
		if loc.Country != nil {
			out.Country = *loc.Country
			parts = append(parts, *loc.Country)
		}

		location := strings.Join(parts, ", ")
		if strings.TrimSpace(strings.ReplaceAll(location, ",", "")) == "" {
			location = "Unknown"
		}
		out.Location = unquote(location)
		out.State = unquote(out.State)
		out.Country = unquote(out.Country)
	}

	return out
}

func qualifier(formatted string) string {
	var q string
	switch {
	case strings.Contains(formatted, "before"):
		q = "bf."
	case strings.Contains(formatted, "after"):
		q = "af."
	case strings.Contains(formatted, "between"):
		q = "bt."
	}
	if strings.Contains(formatted, "circa") {
		q += "c."
	}
	return q
}

func unquote(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}
