// Package source reads rooms, memberships, and messages from the chat archive.
// Every sequence is lazy and scoped: members and messages are queried per room
// on demand. Any read failure is a SourceUnavailable error.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/lherron/chatmig/internal/db"
	"github.com/lherron/chatmig/internal/domain"
)

// Options configures the extractor.
type Options struct {
	// RoomFilter limits extraction to these room identifiers. Empty means all rooms.
	RoomFilter []string
}

// Extractor reads the chat archive.
type Extractor struct {
	db   *db.DB
	opts Options
}

// New creates an Extractor over an opened archive.
func New(database *db.DB, opts Options) *Extractor {
	return &Extractor{db: database, opts: opts}
}

func unavailable(op string, err error) error {
	return domain.Wrap(domain.KindSourceUnavailable, op, err)
}

// Rooms yields every room in extraction order. The title is left empty;
// it is resolved from ConfigBlob by the caller.
func (e *Extractor) Rooms(ctx context.Context) iter.Seq2[domain.SourceRoom, error] {
	return func(yield func(domain.SourceRoom, error) bool) {
		query := "SELECT room_jid, config FROM tc_rooms"
		var args []any
		if len(e.opts.RoomFilter) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(e.opts.RoomFilter)), ", ")
			query += " WHERE room_jid IN (" + placeholders + ")"
			for _, id := range e.opts.RoomFilter {
				args = append(args, id)
			}
		}

		rows, err := e.db.QueryContext(ctx, e.db.Rebind(query), args...)
		if err != nil {
			yield(domain.SourceRoom{}, unavailable("query rooms", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var room domain.SourceRoom
			var config sql.NullString
			if err := rows.Scan(&room.ID, &config); err != nil {
				yield(domain.SourceRoom{}, unavailable("scan room", err))
				return
			}
			room.ConfigBlob = config.String
			if !yield(room, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.SourceRoom{}, unavailable("iterate rooms", err))
		}
	}
}

// Members yields the room's members whose display role is 'none'.
func (e *Extractor) Members(ctx context.Context, roomID string) iter.Seq2[domain.SourceMember, error] {
	return func(yield func(domain.SourceMember, error) bool) {
		rows, err := e.db.QueryContext(ctx, e.db.Rebind(`
			SELECT real_jid, affiliation FROM tc_users
			WHERE role = 'none' AND room_jid = ?
		`), roomID)
		if err != nil {
			yield(domain.SourceMember{}, unavailable("query members", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			member := domain.SourceMember{RoomID: roomID}
			var affiliation sql.NullString
			if err := rows.Scan(&member.Identity, &affiliation); err != nil {
				yield(domain.SourceMember{}, unavailable("scan member", err))
				return
			}
			member.Affiliation = domain.Affiliation(affiliation.String)
			if !yield(member, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.SourceMember{}, unavailable("iterate members", err))
		}
	}
}

// Messages yields the room's archived messages ordered by sent time.
func (e *Extractor) Messages(ctx context.Context, roomID string) iter.Seq2[domain.SourceMessage, error] {
	return func(yield func(domain.SourceMessage, error) bool) {
		rows, err := e.db.QueryContext(ctx, e.db.Rebind(`
			SELECT sent_date, from_jid, body_string, message_string FROM tc_msgarchive
			WHERE to_jid = ?
			ORDER BY sent_date, msg_id
		`), roomID)
		if err != nil {
			yield(domain.SourceMessage{}, unavailable("query messages", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			msg := domain.SourceMessage{RoomID: roomID}
			var sentAt any
			var body, raw sql.NullString
			if err := rows.Scan(&sentAt, &msg.Sender, &body, &raw); err != nil {
				yield(domain.SourceMessage{}, unavailable("scan message", err))
				return
			}
			ts, err := ParseTimestamp(sentAt)
			if err != nil {
				yield(domain.SourceMessage{}, unavailable("scan message", err))
				return
			}
			msg.SentAt = ts
			msg.Body = body.String
			msg.RawBlob = raw.String
			if !yield(msg, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.SourceMessage{}, unavailable("iterate messages", err))
		}
	}
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// ParseTimestamp converts a scanned timestamp column to a time truncated to the
// second. Wall-clock time is preserved: string values are parsed without a zone.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Truncate(time.Second), nil
	case []byte:
		return parseTimestampString(string(t))
	case string:
		return parseTimestampString(t)
	case nil:
		return time.Time{}, fmt.Errorf("timestamp is NULL")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func parseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
