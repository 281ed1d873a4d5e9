// Package rollback removes the acting identity from every room a journal records.
package rollback

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/journal"
	"github.com/lherron/chatmig/internal/webex"
)

// ErrDeclined is returned when the operator chooses not to proceed.
var ErrDeclined = errors.New("rollback declined")

// API is the slice of the destination client rollback needs.
type API interface {
	Me(ctx context.Context) (*webex.Person, error)
	FindMembership(ctx context.Context, roomID string, q webex.MembershipQuery) (*webex.Membership, error)
	DeleteMembership(ctx context.Context, membershipID string) error
}

// Confirmer asks once whether to leave the listed rooms.
type Confirmer interface {
	ConfirmLeave(ctx context.Context, identity string, rooms []journal.Room) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, identity string, rooms []journal.Room) (bool, error)

func (f ConfirmFunc) ConfirmLeave(ctx context.Context, identity string, rooms []journal.Room) (bool, error) {
	return f(ctx, identity, rooms)
}

// AlwaysConfirm proceeds without asking.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string, []journal.Room) (bool, error) { return true, nil })

// RoomResult is the outcome for one journal room.
type RoomResult struct {
	RoomID       string      `json:"room_id"`
	Title        string      `json:"title"`
	MembershipID string      `json:"membership_id,omitempty"`
	Kind         domain.Kind `json:"kind,omitempty"`
	Detail       string      `json:"detail,omitempty"`
}

// Left reports whether the membership was deleted by this run.
func (r RoomResult) Left() bool {
	return r.Kind == "" && r.MembershipID != ""
}

// Report summarizes a rollback.
type Report struct {
	Identity string       `json:"identity"`
	Rooms    []RoomResult `json:"rooms"`
	Left     int          `json:"left"`
	Absent   int          `json:"already_left"`
	Failed   int          `json:"failed"`
}

// Agent runs rollbacks.
type Agent struct {
	api     API
	confirm Confirmer
	log     zerolog.Logger
}

// New creates an Agent.
func New(api API, confirm Confirmer, log zerolog.Logger) *Agent {
	if confirm == nil {
		confirm = AlwaysConfirm
	}
	return &Agent{api: api, confirm: confirm, log: log}
}

// Run resolves the acting identity, confirms once, then leaves every room in
// doc. A room the identity already left is AlreadyLeft; other per-room failures
// are OperationFailed and do not stop the remaining rooms. Unauthorized aborts.
func (a *Agent) Run(ctx context.Context, doc *journal.Document) (*Report, error) {
	me, err := a.api.Me(ctx)
	if err != nil {
		return nil, err
	}
	identity := me.Email()
	if identity == "" {
		identity = me.ID
	}
	a.log.Info().Str("identity", identity).Int("rooms", len(doc.Rooms)).Msg("rollback identity resolved")

	if doc.Meta.Archiver != nil && doc.Meta.Archiver.ID != "" && doc.Meta.Archiver.ID != me.ID {
		a.log.Warn().
			Str("journal_archiver", doc.Meta.Archiver.Email).
			Str("identity", identity).
			Msg("journal was written by a different identity")
	}

	rooms := make([]journal.Room, 0, len(doc.Rooms))
	for _, e := range doc.Rooms {
		rooms = append(rooms, e.Room)
	}
	ok, err := a.confirm.ConfirmLeave(ctx, identity, rooms)
	if err != nil {
		return nil, fmt.Errorf("confirm rollback: %w", err)
	}
	if !ok {
		a.log.Info().Msg("rollback declined")
		return nil, ErrDeclined
	}

	report := &Report{Identity: identity, Rooms: make([]RoomResult, 0, len(doc.Rooms))}
	for i, room := range rooms {
		res, err := a.leave(ctx, me, room)
		if err != nil {
			return report, err
		}
		switch {
		case res.Left():
			report.Left++
		case res.Kind == domain.KindAlreadyLeft:
			report.Absent++
		default:
			report.Failed++
		}
		report.Rooms = append(report.Rooms, res)
		a.log.Info().
			Int("room", i+1).
			Str("room_id", room.ID).
			Str("title", room.Title).
			Str("kind", string(res.Kind)).
			Msg("rollback room processed")
	}
	return report, nil
}

func (a *Agent) leave(ctx context.Context, me *webex.Person, room journal.Room) (RoomResult, error) {
	res := RoomResult{RoomID: room.ID, Title: room.Title}

	m, err := a.api.FindMembership(ctx, room.ID, webex.MembershipQuery{PersonID: me.ID})
	if err != nil {
		if domain.IsFatal(err) || ctx.Err() != nil {
			return res, err
		}
		return failed(a.log, res, err), nil
	}
	if m == nil {
		res.Kind = domain.KindAlreadyLeft
		res.Detail = "membership not found"
		return res, nil
	}

	res.MembershipID = m.ID
	err = a.api.DeleteMembership(ctx, m.ID)
	switch {
	case err == nil:
		return res, nil
	case domain.KindOf(err) == domain.KindAlreadyLeft:
		res.Kind = domain.KindAlreadyLeft
		res.Detail = "membership already deleted"
		return res, nil
	case domain.IsFatal(err) || ctx.Err() != nil:
		return res, err
	default:
		return failed(a.log, res, err), nil
	}
}

func failed(log zerolog.Logger, res RoomResult, err error) RoomResult {
	res.Kind = domain.KindOperationFailed
	res.Detail = err.Error()
	log.Warn().
		Err(err).
		Str("kind", string(res.Kind)).
		Str("room_id", res.RoomID).
		Msg("leave room failed")
	return res
}
