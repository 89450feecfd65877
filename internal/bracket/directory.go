package bracket

import (
	"strings"

	"github.com/jensholdgaard/discord-bracket-bot/internal/challonge"
)

// placeholderName is used when a participant has neither a name nor a
// username on the bracket service.
const placeholderName = "<unknown>"

// Directory maps Challonge participant ids to display names for one
// tournament. Alias ids from group stages resolve to the same name as
// the participant's primary id.
type Directory struct {
	names  map[int64]string
	roster []string
}

// NewDirectory builds a Directory from the raw participant list.
func NewDirectory(participants []challonge.Participant) *Directory {
	d := &Directory{
		names:  make(map[int64]string, len(participants)),
		roster: make([]string, 0, len(participants)),
	}
	for _, p := range participants {
		name := displayName(p)
		d.names[p.ID] = name
		for _, alias := range p.GroupPlayerIDs {
			d.names[alias] = name
		}
		d.roster = append(d.roster, name)
	}
	return d
}

func displayName(p challonge.Participant) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(p.Username); name != "" {
		return name
	}
	return placeholderName
}

// Resolve returns the display name registered for a participant id.
func (d *Directory) Resolve(id int64) (string, bool) {
	name, ok := d.names[id]
	return name, ok
}

// HasDisplayName reports whether a name belongs to the roster,
// compared case-insensitively.
func (d *Directory) HasDisplayName(name string) bool {
	for _, n := range d.roster {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Names returns the roster display names in participant order.
func (d *Directory) Names() []string {
	names := make([]string, len(d.roster))
	copy(names, d.roster)
	return names
}

// Len returns the number of participants.
func (d *Directory) Len() int { return len(d.roster) }
