// Package journal records the destination entities a migration run creates.
//
// Entries accumulate in memory in room-processing order and are written once,
// as a single JSON document, when the run ends. Rollback reads the document back.
package journal

import (
	"strings"

	"github.com/lherron/chatmig/internal/domain"
)

// SchemaVersion is the current document version.
const SchemaVersion = 1

// Document is the on-disk journal.
type Document struct {
	Meta  Meta    `json:"meta"`
	Rooms []Entry `json:"rooms"`
}

// Meta contains journal metadata.
type Meta struct {
	SchemaVersion int       `json:"schema_version"`
	RunID         string    `json:"run_id"`
	GeneratedAt   string    `json:"generated_at,omitempty"`
	JournalRev    string    `json:"journal_rev,omitempty"`
	Archiver      *Archiver `json:"archiver,omitempty"`
	Legacy        bool      `json:"legacy,omitempty"`
}

// Archiver is the identity the run acted as.
type Archiver struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Entry is one migrated room.
type Entry struct {
	Room       Room      `json:"room"`
	SourceRoom string    `json:"source_room,omitempty"`
	Members    []Member  `json:"members"`
	Messages   int       `json:"messages_posted"`
	Anomalies  []Anomaly `json:"anomalies,omitempty"`
}

// Room is the destination room created for a source room.
type Room struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Member summarizes a destination membership. PersonID is empty when the
// person was already a member before the run.
type Member struct {
	Identity    string `json:"identity"`
	IsModerator bool   `json:"is_moderator"`
	PersonID    string `json:"person_id,omitempty"`
	PreExisting bool   `json:"pre_existing,omitempty"`
}

// Anomaly is a recoverable condition met while migrating a room.
type Anomaly struct {
	Kind   domain.Kind `json:"kind"`
	Op     string      `json:"op"`
	Detail string      `json:"detail,omitempty"`
}

// NewEntry starts an entry for a created room.
func NewEntry(room domain.DestinationRoom, sourceRoom string) *Entry {
	return &Entry{
		Room:       Room{ID: room.ID, Title: room.Title},
		SourceRoom: sourceRoom,
		Members:    []Member{},
	}
}

// AddMember records a membership. It reports false, leaving the entry
// unchanged, if the identity is already listed.
func (e *Entry) AddMember(m domain.DestinationMembership) bool {
	for _, existing := range e.Members {
		if strings.EqualFold(existing.Identity, m.Identity) {
			return false
		}
	}
	member := Member{
		Identity:    m.Identity,
		IsModerator: m.IsModerator,
		PreExisting: m.PreExisting,
	}
	if !m.PreExisting {
		member.PersonID = m.PersonID
	}
	e.Members = append(e.Members, member)
	return true
}

// Record adds a non-success outcome. Successful outcomes are ignored.
func (e *Entry) Record(op string, o domain.Outcome) {
	if o.OK() {
		return
	}
	e.Anomalies = append(e.Anomalies, Anomaly{Kind: o.Kind, Op: op, Detail: o.Detail})
}

// AnomalyCount returns how many anomalies of kind were recorded.
func (e *Entry) AnomalyCount(kind domain.Kind) int {
	n := 0
	for _, a := range e.Anomalies {
		if a.Kind == kind {
			n++
		}
	}
	return n
}
