package http

import (
	"fmt"
	"net/url"
	"time"
)

// resource maps a public endpoint to a portal resource.
type resource struct {
	Path   string
	Portal string
	// Dates lists query parameters that must be YYYY-MM-DD dates.
	Dates []string
	// Required lists query parameters that must be present.
	Required []string
	// Action resources change portal state and are sent as POST.
	Action bool
}

var resources = []resource{
	{Path: "/user", Portal: "user"},
	{Path: "/timetable", Portal: "timetable", Dates: []string{"dateString"}, Required: []string{"dateString"}},
	{Path: "/homework", Portal: "homework", Dates: []string{"dateFrom", "dateTo"}, Required: []string{"dateFrom", "dateTo"}},
	{Path: "/grades", Portal: "grades"},
	{Path: "/absences", Portal: "absences"},
	{Path: "/punishments", Portal: "punishments"},
	{Path: "/news", Portal: "news"},
	{Path: "/discussions", Portal: "discussions"},
	{Path: "/evaluations", Portal: "evaluations"},
	{Path: "/menu", Portal: "menus", Dates: []string{"dateFrom", "dateTo"}, Required: []string{"dateFrom", "dateTo"}},
	{Path: "/export/ical", Portal: "export/ical"},
	{
		Path:     "/homework/setAsDone",
		Portal:   "homework/done",
		Dates:    []string{"dateFrom", "dateTo"},
		Required: []string{"dateFrom", "dateTo", "homeworkId"},
		Action:   true,
	},
}

// query validates the incoming parameters and returns those forwarded to the portal.
// The token never leaves this instance.
func (res resource) query(in url.Values) (url.Values, error) {
	for _, name := range res.Required {
		if in.Get(name) == "" {
			return nil, fmt.Errorf("missing%s", name)
		}
	}
	for _, name := range res.Dates {
		if v := in.Get(name); v != "" {
			if _, err := time.Parse(time.DateOnly, v); err != nil {
				return nil, fmt.Errorf("invalid %s: expected YYYY-MM-DD", name)
			}
		}
	}

	out := make(url.Values, len(in))
	for k, vs := range in {
		if k == "token" {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out, nil
}
