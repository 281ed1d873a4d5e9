package journal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrFlushed is returned when a journal is used after it was written.
var ErrFlushed = errors.New("journal already flushed")

// FileTimeLayout is the timestamp prefix of journal and log file names.
const FileTimeLayout = "2006-01-02_15-04-05"

// DefaultPath returns the journal file for a run started at t.
func DefaultPath(logDir string, t time.Time) string {
	return filepath.Join(logDir, t.Format(FileTimeLayout)+" - journal.json")
}

// Options configures a Journal.
type Options struct {
	Path  string
	RunID string
	Now   func() time.Time
}

// Journal is the in-memory accumulator owned by one run.
type Journal struct {
	path    string
	now     func() time.Time
	doc     Document
	flushed bool
}

// New creates an empty journal. A random run id is generated when none is given.
func New(opts Options) *Journal {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Journal{
		path: opts.Path,
		now:  opts.Now,
		doc: Document{
			Meta:  Meta{SchemaVersion: SchemaVersion, RunID: opts.RunID},
			Rooms: []Entry{},
		},
	}
}

// RunID returns the run identifier.
func (j *Journal) RunID() string {
	return j.doc.Meta.RunID
}

// Path returns where the journal is flushed.
func (j *Journal) Path() string {
	return j.path
}

// SetArchiver records the identity the run acts as.
func (j *Journal) SetArchiver(id, email string) {
	j.doc.Meta.Archiver = &Archiver{ID: id, Email: email}
}

// Append adds a finished room. It must be called once per room, after all of
// the room's members and messages were attempted.
func (j *Journal) Append(e *Entry) error {
	if j.flushed {
		return ErrFlushed
	}
	for _, existing := range j.doc.Rooms {
		if existing.Room.ID == e.Room.ID {
			return fmt.Errorf("room %s already journaled", e.Room.ID)
		}
	}
	j.doc.Rooms = append(j.doc.Rooms, *e)
	return nil
}

// Entries returns the rooms appended so far.
func (j *Journal) Entries() []Entry {
	return j.doc.Rooms
}

// Document returns the journal as it would be flushed now.
func (j *Journal) Document() Document {
	return j.doc
}

// Flush writes the journal. It can be called once.
func (j *Journal) Flush() error {
	if j.flushed {
		return ErrFlushed
	}
	if j.path == "" {
		return errors.New("journal path not set")
	}

	j.doc.Meta.GeneratedAt = j.now().UTC().Format(time.RFC3339)
	j.doc.Meta.JournalRev = ""
	body, err := Encode(&j.doc)
	if err != nil {
		return err
	}
	j.doc.Meta.JournalRev = ComputeRev(body)

	data, err := Encode(&j.doc)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}

	j.flushed = true
	return nil
}

// Encode renders a document as indented JSON with a trailing newline.
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode journal: %w", err)
	}
	return buf.Bytes(), nil
}

// ComputeRev hashes an encoded document. Returns "sha256:<hex>" format.
func ComputeRev(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
