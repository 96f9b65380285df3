package gameevent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Report is the content of a report file: the two teams of a game and the
// events to publish for it, in file order.
type Report struct {
	TeamA  string
	TeamB  string
	Events []Event
}

// GameName returns the game the report belongs to.
func (r Report) GameName() string {
	return GameName(r.TeamA, r.TeamB)
}

type reportFile struct {
	TeamA  string            `json:"team a"`
	TeamB  string            `json:"team b"`
	Events []reportFileEvent `json:"events"`
}

type reportFileEvent struct {
	Name           string                     `json:"event name"`
	Time           int                        `json:"time"`
	Description    string                     `json:"description"`
	GeneralUpdates map[string]json.RawMessage `json:"general game updates"`
	TeamAUpdates   map[string]json.RawMessage `json:"team a updates"`
	TeamBUpdates   map[string]json.RawMessage `json:"team b updates"`
}

// LoadReportFile reads and parses a JSON report file.
func LoadReportFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open report file: %w", err)
	}
	defer f.Close()

	r, err := ParseReport(f)
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseReport decodes a JSON report. Update values that are not strings are
// kept as their JSON text, so true stays "true" and 12 stays "12".
func ParseReport(r io.Reader) (Report, error) {
	var raw reportFile
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Report{}, fmt.Errorf("parse report: %w", err)
	}
	if raw.TeamA == "" || raw.TeamB == "" {
		return Report{}, fmt.Errorf("parse report: missing team names")
	}

	report := Report{
		TeamA:  raw.TeamA,
		TeamB:  raw.TeamB,
		Events: make([]Event, 0, len(raw.Events)),
	}
	for _, ev := range raw.Events {
		report.Events = append(report.Events, Event{
			TeamA:          raw.TeamA,
			TeamB:          raw.TeamB,
			Name:           ev.Name,
			Time:           ev.Time,
			Description:    ev.Description,
			GeneralUpdates: flattenUpdates(ev.GeneralUpdates),
			TeamAUpdates:   flattenUpdates(ev.TeamAUpdates),
			TeamBUpdates:   flattenUpdates(ev.TeamBUpdates),
		})
	}
	return report, nil
}

func flattenUpdates(in map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(bytes.TrimSpace(v))
	}
	return out
}
