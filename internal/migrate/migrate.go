// Package migrate runs the migration pipeline: rooms in extraction order, each
// room's memberships before its messages, one destination call at a time.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/lherron/chatmig/internal/archivexml"
	"github.com/lherron/chatmig/internal/attach"
	"github.com/lherron/chatmig/internal/correlate"
	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/journal"
	"github.com/lherron/chatmig/internal/message"
	"github.com/lherron/chatmig/internal/webex"
)

// Source reads the chat archive.
type Source interface {
	Rooms(ctx context.Context) iter.Seq2[domain.SourceRoom, error]
	Members(ctx context.Context, roomID string) iter.Seq2[domain.SourceMember, error]
	Messages(ctx context.Context, roomID string) iter.Seq2[domain.SourceMessage, error]
}

// API is the destination surface the pipeline calls.
type API interface {
	Me(ctx context.Context) (*webex.Person, error)
	ListRooms(ctx context.Context) ([]webex.Room, error)
	CreateRoom(ctx context.Context, title string) (*webex.Room, error)
	AddMembership(ctx context.Context, roomID, email string, moderator bool) (*webex.Membership, error)
	FindMembership(ctx context.Context, roomID string, q webex.MembershipQuery) (*webex.Membership, error)
	DeleteMembership(ctx context.Context, membershipID string) error
	PostMessage(ctx context.Context, roomID, markdown string) (*webex.Message, error)
	PostMessageWithFile(ctx context.Context, roomID, markdown, path, contentType string) (*webex.Message, error)
}

// Correlator matches attachment messages to transfer records.
type Correlator interface {
	Correlate(ctx context.Context, room string, sentAt time.Time, fileName string) (correlate.Result, error)
}

// Fetcher downloads a remote file to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, host, remotePath, localPath string) (attach.Staged, error)
}

// Recorder receives pipeline counters. It may be nil.
type Recorder interface {
	RoomDone(status Status)
	MemberAdded(outcome string)
	MessagePosted(kind string)
	Anomaly(kind domain.Kind)
}

// Options controls what a run does.
type Options struct {
	// CreateRooms false walks the archive without calling the destination.
	CreateRooms   bool
	CheckExisting bool
	IncludeFiles  bool
	// LeaveRooms removes the archiver from rooms it was not a source member of.
	LeaveRooms  bool
	DownloadDir string
	// MaxAttachmentBytes is checked against the downloaded size, which a
	// transfer record may under-report.
	MaxAttachmentBytes int64
}

// Deps are the collaborators of a run.
type Deps struct {
	Source      Source
	API         API
	Correlator  Correlator
	Fetcher     Fetcher
	Policy      DuplicatePolicy
	Journal     *journal.Journal
	Transformer message.Transformer
	Metrics     Recorder
	Logger      zerolog.Logger
}

// Runner executes migration runs.
type Runner struct {
	opts Options
	deps Deps
	log  zerolog.Logger
}

// New creates a Runner. It reports configuration that cannot work rather than
// failing midway through a run.
func New(opts Options, deps Deps) (*Runner, error) {
	if deps.Source == nil {
		return nil, errors.New("migrate: source is required")
	}
	if opts.CreateRooms {
		if deps.API == nil {
			return nil, errors.New("migrate: destination API is required to create rooms")
		}
		if deps.Journal == nil {
			return nil, errors.New("migrate: journal is required to create rooms")
		}
	}
	if opts.IncludeFiles && deps.Correlator == nil {
		return nil, errors.New("migrate: correlator is required to include files")
	}
	if opts.IncludeFiles && opts.CreateRooms && deps.Fetcher == nil {
		return nil, errors.New("migrate: file fetcher is required to include files")
	}
	if deps.Policy == nil {
		deps.Policy = FixedPolicy(domain.PolicySkip)
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "file-transfer"
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = correlate.DefaultMaxBytes
	}
	return &Runner{opts: opts, deps: deps, log: deps.Logger}, nil
}

// run is the state owned by one Run call.
type run struct {
	archiver *webex.Person
	existing map[string]bool
	runID    string
	summary  *Summary
}

// Run migrates every source room. A fatal error stops the run; rooms created
// up to that point remain in the journal, which is flushed either way when
// rooms are being created.
func (r *Runner) Run(ctx context.Context) (sum *Summary, err error) {
	st := &run{
		existing: map[string]bool{},
		summary:  &Summary{StartedAt: time.Now()},
	}
	if r.deps.Journal != nil {
		st.runID = r.deps.Journal.RunID()
	} else {
		st.runID = "inspect"
	}
	st.summary.RunID = st.runID
	r.log.Info().Str("run_id", st.runID).Bool("create_rooms", r.opts.CreateRooms).Msg("migration started")

	if r.opts.CreateRooms {
		defer func() {
			if flushErr := r.deps.Journal.Flush(); flushErr != nil {
				if err == nil {
					err = fmt.Errorf("flush journal: %w", flushErr)
				} else {
					r.log.Error().Err(flushErr).Msg("flush journal after failed run")
				}
				return
			}
			r.log.Info().Str("path", r.deps.Journal.Path()).Msg("journal written")
		}()

		if err := r.prepare(ctx, st); err != nil {
			return st.summary, err
		}
	}

	n := 0
	for room, err := range r.deps.Source.Rooms(ctx) {
		if err != nil {
			return st.summary, err
		}
		n++
		log := r.log.With().Int("room_no", n).Str("source_room", room.ID).Logger()
		rs, err := r.migrateRoom(ctx, st, log, room)
		if err != nil && rs.Status == "" {
			rs.Status = StatusFailed
			rs.Detail = err.Error()
		}
		st.summary.add(rs)
		if r.deps.Metrics != nil {
			r.deps.Metrics.RoomDone(rs.Status)
		}
		if err != nil {
			return st.summary, err
		}
	}

	if r.opts.IncludeFiles && r.opts.CreateRooms {
		if err := attach.RemoveRunDir(r.opts.DownloadDir, st.runID); err != nil {
			r.log.Warn().Err(err).Msg("remove staging directory")
		}
	}
	st.summary.FinishedAt = time.Now()
	r.log.Info().
		Int("rooms", len(st.summary.Rooms)).
		Int("messages", st.summary.Totals.Messages).
		Int("anomalies", st.summary.Totals.Anomalies).
		Msg("migration completed")
	return st.summary, nil
}

// prepare resolves the archiver identity and, if requested, the existing room titles.
func (r *Runner) prepare(ctx context.Context, st *run) error {
	me, err := r.deps.API.Me(ctx)
	if err != nil {
		return fmt.Errorf("resolve archiver identity: %w", err)
	}
	st.archiver = me
	r.deps.Journal.SetArchiver(me.ID, me.Email())
	r.log.Info().Str("archiver", me.Email()).Msg("archiver identity resolved")

	if !r.opts.CheckExisting {
		return nil
	}
	rooms, err := r.deps.API.ListRooms(ctx)
	if err != nil {
		if domain.IsFatal(err) {
			return err
		}
		return fmt.Errorf("list existing rooms: %w", err)
	}
	for _, room := range rooms {
		st.existing[room.Title] = true
	}
	r.log.Info().Int("existing_rooms", len(rooms)).Msg("existing destination rooms listed")
	return nil
}

// migrateRoom processes one source room.
func (r *Runner) migrateRoom(ctx context.Context, st *run, log zerolog.Logger, src domain.SourceRoom) (rs RoomSummary, err error) {
	rs = RoomSummary{SourceRoom: src.ID}

	title, err := archivexml.RoomTitle(src.ConfigBlob)
	if err != nil {
		rs.Status = StatusMalformed
		rs.Detail = err.Error()
		rs.Anomalies++
		r.anomaly(log, domain.KindMalformedConfig, "resolve room title", err.Error())
		return rs, nil
	}
	src.Title = title
	rs.Title = title
	log = log.With().Str("title", title).Logger()
	log.Info().Msg("room")

	rc := &roomRun{run: st, src: src, log: log, summary: &rs}

	if r.opts.CreateRooms {
		room, skip, err := r.resolveOrCreateRoom(ctx, rc)
		if err != nil {
			rs.Status = StatusFailed
			rs.Detail = err.Error()
			return rs, err
		}
		if skip != "" {
			rs.Status = skip
			return rs, nil
		}
		rc.dest = room
		rc.entry = journal.NewEntry(*room, src.ID)
		rs.DestinationID = room.ID

		defer func() {
			if leaveErr := r.maybeLeave(ctx, rc); leaveErr != nil && err == nil {
				err = leaveErr
			}
			if appendErr := r.deps.Journal.Append(rc.entry); appendErr != nil && err == nil {
				err = appendErr
			}
			if err != nil {
				rs.Status = StatusFailed
				rs.Detail = err.Error()
			}
		}()
	}

	if err := r.addMembers(ctx, rc); err != nil {
		return rs, err
	}
	if err := r.postMessages(ctx, rc); err != nil {
		return rs, err
	}

	if r.opts.CreateRooms {
		rs.Status = StatusMigrated
	} else {
		rs.Status = StatusInspected
	}
	return rs, nil
}

// roomRun is the state for the room being migrated.
type roomRun struct {
	*run
	src              domain.SourceRoom
	dest             *domain.DestinationRoom
	entry            *journal.Entry
	archiverIsMember bool
	log              zerolog.Logger
	summary          *RoomSummary
}

// record notes a recoverable outcome for the current room.
func (r *Runner) record(rc *roomRun, op string, o domain.Outcome) {
	if o.OK() {
		return
	}
	rc.summary.Anomalies++
	if rc.entry != nil {
		rc.entry.Record(op, o)
	}
	r.anomaly(rc.log, o.Kind, op, o.Detail)
}

func (r *Runner) anomaly(log zerolog.Logger, kind domain.Kind, op, detail string) {
	log.Warn().Str("kind", string(kind)).Str("op", op).Str("detail", detail).Msg("recovered")
	if r.deps.Metrics != nil {
		r.deps.Metrics.Anomaly(kind)
	}
}

// contain decides the blast radius of an error from one destination call:
// fatal errors and cancellation propagate, anything else becomes an outcome.
func contain(ctx context.Context, err error) (domain.Outcome, error) {
	if err == nil {
		return domain.Success, nil
	}
	if domain.IsFatal(err) {
		return domain.Outcome{}, err
	}
	if ctx.Err() != nil {
		return domain.Outcome{}, ctx.Err()
	}
	kind := domain.KindOf(err)
	if kind == "" {
		kind = domain.KindOperationFailed
	}
	return domain.Recovered(kind, err.Error()), nil
}
