// Package gameevent describes a single reported game event and its two text
// forms: the JSON report files users submit, and the line-oriented body
// carried by SEND and MESSAGE frames.
package gameevent

import (
	"bufio"
	"sort"
	"strconv"
	"strings"
)

// Body section markers and field keys.
const (
	keyUser        = "user:"
	keyTeamA       = "team a:"
	keyTeamB       = "team b:"
	keyEventName   = "event name:"
	keyTime        = "time:"
	sectionGeneral = "general game updates:"
	sectionTeamA   = "team a updates:"
	sectionTeamB   = "team b updates:"
	sectionDesc    = "description:"
)

// Event is one reported occurrence in a game.
type Event struct {
	TeamA          string
	TeamB          string
	Name           string
	Time           int
	GeneralUpdates map[string]string
	TeamAUpdates   map[string]string
	TeamBUpdates   map[string]string
	Description    string
}

// GameName returns the game identifier, "<team a>_<team b>".
func (e Event) GameName() string {
	return GameName(e.TeamA, e.TeamB)
}

// GameName joins two team names into a game identifier.
func GameName(teamA, teamB string) string {
	return teamA + "_" + teamB
}

// FormatBody renders the event as a frame body reported by user. Update
// keys are written in sorted order.
func (e Event) FormatBody(user string) string {
	var b strings.Builder
	writeField(&b, keyUser, user)
	writeField(&b, keyTeamA, e.TeamA)
	writeField(&b, keyTeamB, e.TeamB)
	writeField(&b, keyEventName, e.Name)
	writeField(&b, keyTime, strconv.Itoa(e.Time))

	writeSection(&b, sectionGeneral, e.GeneralUpdates)
	writeSection(&b, sectionTeamA, e.TeamAUpdates)
	writeSection(&b, sectionTeamB, e.TeamBUpdates)

	b.WriteString(sectionDesc)
	b.WriteByte('\n')
	b.WriteString(e.Description)
	b.WriteByte('\n')
	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteByte(' ')
	b.WriteString(value)
	b.WriteByte('\n')
}

func writeSection(b *strings.Builder, header string, updates map[string]string) {
	b.WriteString(header)
	b.WriteByte('\n')
	for _, k := range sortedKeys(updates) {
		writeField(b, k+":", updates[k])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type section int

const (
	sectionNone section = iota
	sectionInGeneral
	sectionInTeamA
	sectionInTeamB
	sectionInDescription
)

// ParseBody reads an event back from a frame body. Unknown lines are
// ignored, blank lines are skipped and a time that is not an integer reads
// as 0.
func ParseBody(body string) Event {
	e := Event{
		GeneralUpdates: make(map[string]string),
		TeamAUpdates:   make(map[string]string),
		TeamBUpdates:   make(map[string]string),
	}

	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	cur := sectionNone
	var desc []string

	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			continue
		}

		switch line {
		case sectionGeneral:
			cur = sectionInGeneral
			continue
		case sectionTeamA:
			cur = sectionInTeamA
			continue
		case sectionTeamB:
			cur = sectionInTeamB
			continue
		case sectionDesc:
			cur = sectionInDescription
			desc = desc[:0]
			continue
		}

		// Inside a section every line belongs to it, so an update keyed
		// "time" is not mistaken for the event time.
		switch cur {
		case sectionInDescription:
			desc = append(desc, line)
			continue
		case sectionInGeneral, sectionInTeamA, sectionInTeamB:
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			value = strings.TrimPrefix(value, " ")
			switch cur {
			case sectionInGeneral:
				e.GeneralUpdates[key] = value
			case sectionInTeamA:
				e.TeamAUpdates[key] = value
			case sectionInTeamB:
				e.TeamBUpdates[key] = value
			}
			continue
		}

		if v, ok := fieldValue(line, keyTeamA); ok {
			e.TeamA = v
		} else if v, ok := fieldValue(line, keyTeamB); ok {
			e.TeamB = v
		} else if v, ok := fieldValue(line, keyEventName); ok {
			e.Name = v
		} else if v, ok := fieldValue(line, keyTime); ok {
			e.Time, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}

	e.Description = strings.Join(desc, "\n")
	return e
}

// fieldValue returns the value of a "key: value" line, trimming one space
// after the colon.
func fieldValue(line, key string) (string, bool) {
	if !strings.HasPrefix(line, key) {
		return "", false
	}
	return strings.TrimPrefix(line[len(key):], " "), true
}

// UserFromBody returns the reporting user named on the first "user:" line of
// a body, or fallback when there is none.
func UserFromBody(body, fallback string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if v, ok := fieldValue(line, keyUser); ok {
			return v
		}
	}
	return fallback
}
