package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Load reads a journal file. Both the current document and the legacy
// summary list (archiver_user / webex_room / room_users objects) are accepted.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return Parse(data)
}

// Parse decodes journal bytes.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("failed to parse journal: empty document")
	}
	if trimmed[0] == '[' {
		return parseLegacy(trimmed)
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse journal: %w", err)
	}
	if doc.Meta.SchemaVersion < 1 || doc.Meta.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("unsupported journal schema_version: %d", doc.Meta.SchemaVersion)
	}
	for i, e := range doc.Rooms {
		if e.Room.ID == "" {
			return nil, fmt.Errorf("journal room %d has no id", i+1)
		}
	}
	return &doc, nil
}

// Verify reports whether the document's journal_rev matches its content.
// Documents without a rev (legacy or hand-built) verify trivially.
func Verify(doc *Document) (bool, error) {
	if doc.Meta.JournalRev == "" {
		return true, nil
	}
	c := *doc
	c.Meta.JournalRev = ""
	data, err := Encode(&c)
	if err != nil {
		return false, err
	}
	return ComputeRev(data) == doc.Meta.JournalRev, nil
}

type legacyElement struct {
	ArchiverUser *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"archiver_user"`
	WebexRoom *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"webex_room"`
	RoomUsers []struct {
		Email             string `json:"email"`
		ID                string `json:"id"`
		IsModerator       any    `json:"idModerator"`
		UserAlreadyExists any    `json:"user_already_exists"`
	} `json:"room_users"`
}

func parseLegacy(data []byte) (*Document, error) {
	var elems []legacyElement
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("failed to parse legacy journal: %w", err)
	}

	doc := &Document{
		Meta:  Meta{SchemaVersion: SchemaVersion, Legacy: true},
		Rooms: []Entry{},
	}
	for _, el := range elems {
		if el.ArchiverUser != nil {
			doc.Meta.Archiver = &Archiver{ID: el.ArchiverUser.ID, Email: el.ArchiverUser.Email}
		}
		if el.WebexRoom == nil {
			continue
		}
		entry := Entry{
			Room:    Room{ID: el.WebexRoom.ID, Title: el.WebexRoom.Title},
			Members: []Member{},
		}
		for _, u := range el.RoomUsers {
			m := Member{
				Identity:    u.Email,
				IsModerator: truthy(u.IsModerator),
				PreExisting: truthy(u.UserAlreadyExists),
			}
			if !m.PreExisting {
				m.PersonID = u.ID
			}
			entry.Members = append(entry.Members, m)
		}
		doc.Rooms = append(doc.Rooms, entry)
	}
	return doc, nil
}

// truthy accepts the string and boolean spellings the legacy format used.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}
