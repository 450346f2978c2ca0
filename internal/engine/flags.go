package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/steveyegge/katana/internal/unit"
)

// LocateFlags implements unit.Engine. The first match in text is added to
// the flag list; with stop set, the match also retires u.
func (e *Engine) LocateFlags(u unit.Unit, text string, stop bool) bool {
	if e.flag == nil || text == "" {
		return false
	}
	match := e.flag.FindString(text)
	if match == "" {
		return false
	}

	// the unit's ancestry is what explains the flag
	e.results.Record(u, nil)

	if e.results.AddFlag(match) {
		e.metrics.FlagsFound.Inc()
		e.log.WithFields(logrus.Fields{"unit": u.Name(), "unit_id": u.ID()}).Infof("found flag: %s", match)
		if e.onFlag != nil {
			e.onFlag(u, match)
		}
	}
	if stop {
		u.SetCompleted()
	}
	return true
}

// AddResults implements unit.Engine.
func (e *Engine) AddResults(u unit.Unit, r unit.Result) {
	e.results.Record(u, r)
}

// scanResult runs the flag matcher over the text values of r.
func (e *Engine) scanResult(u unit.Unit, r unit.Result) {
	for _, v := range r {
		switch v := v.(type) {
		case string:
			e.LocateFlags(u, v, true)
		case []string:
			for _, s := range v {
				e.LocateFlags(u, s, true)
			}
		}
	}
}
