package migrate

import (
	"context"
	"fmt"

	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/webex"
)

// DuplicatePolicy decides what to do when a room title already exists at the
// destination. It returns PolicySkip or PolicyMigrateAnyway.
type DuplicatePolicy interface {
	OnDuplicate(ctx context.Context, title string) (domain.Policy, error)
}

// PolicyFunc adapts a function to DuplicatePolicy.
type PolicyFunc func(ctx context.Context, title string) (domain.Policy, error)

func (f PolicyFunc) OnDuplicate(ctx context.Context, title string) (domain.Policy, error) {
	return f(ctx, title)
}

// FixedPolicy applies the same decision to every duplicate.
func FixedPolicy(p domain.Policy) DuplicatePolicy {
	return PolicyFunc(func(context.Context, string) (domain.Policy, error) { return p, nil })
}

// resolveOrCreateRoom creates the destination room for rc.src. A non-empty
// Status means the room was not created and processing moves to the next room.
func (r *Runner) resolveOrCreateRoom(ctx context.Context, rc *roomRun) (*domain.DestinationRoom, Status, error) {
	title := rc.src.Title

	if r.opts.CheckExisting && rc.existing[title] {
		rc.log.Info().Msg("a room with this title already exists at the destination")
		policy, err := r.deps.Policy.OnDuplicate(ctx, title)
		if err != nil {
			return nil, "", fmt.Errorf("duplicate room decision: %w", err)
		}
		switch policy {
		case domain.PolicySkip:
			rc.log.Info().Str("kind", string(domain.KindSkipped)).Msg("skipping duplicate room")
			return nil, StatusSkipped, nil
		case domain.PolicyMigrateAnyway:
			rc.log.Info().Msg("migrating duplicate room into a new room")
		default:
			return nil, "", fmt.Errorf("duplicate room decision: unsupported policy %q", policy)
		}
	}

	room, err := r.deps.API.CreateRoom(ctx, title)
	outcome, err := contain(ctx, err)
	if err != nil {
		return nil, "", err
	}
	if !outcome.OK() {
		r.record(rc, "create room", outcome)
		rc.summary.Detail = outcome.Detail
		return nil, StatusFailed, nil
	}

	rc.existing[title] = true
	rc.log.Info().Str("room_id", room.ID).Msg("destination room created")
	return &domain.DestinationRoom{ID: room.ID, Title: title}, "", nil
}

// addMembers adds every source member of the room. In inspect mode members are only counted.
func (r *Runner) addMembers(ctx context.Context, rc *roomRun) error {
	for m, err := range r.deps.Source.Members(ctx, rc.src.ID) {
		if err != nil {
			return err
		}
		identity := r.deps.Transformer.Sender(m.Identity)
		moderator := domain.IsModerator(m.Affiliation)
		rc.log.Debug().
			Str("member", identity).
			Str("affiliation", string(m.Affiliation)).
			Bool("moderator", moderator).
			Msg("member")

		if rc.archiver != nil && identity == rc.archiver.Email() {
			rc.archiverIsMember = true
		}
		rc.summary.Members++
		if !r.opts.CreateRooms {
			continue
		}

		if err := r.addMember(ctx, rc, identity, moderator); err != nil {
			return err
		}
	}
	return nil
}

// addMember adds one membership. An existing membership is recorded as
// pre-existing, never as a failure.
func (r *Runner) addMember(ctx context.Context, rc *roomRun, identity string, moderator bool) error {
	membership := domain.DestinationMembership{
		RoomID:      rc.dest.ID,
		Identity:    identity,
		IsModerator: moderator,
	}

	m, err := r.deps.API.AddMembership(ctx, rc.dest.ID, identity, moderator)
	outcome, err := contain(ctx, err)
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case "":
		membership.PersonID = m.PersonID
		rc.entry.AddMember(membership)
		r.memberMetric("added")
	case domain.KindAlreadyMember:
		membership.PreExisting = true
		rc.entry.AddMember(membership)
		rc.summary.PreExisting++
		rc.log.Info().Str("member", identity).Str("kind", string(domain.KindAlreadyMember)).Msg("already a member")
		r.memberMetric("pre_existing")
	default:
		r.record(rc, "add member "+identity, outcome)
		r.memberMetric("failed")
	}
	return nil
}

func (r *Runner) memberMetric(outcome string) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.MemberAdded(outcome)
	}
}

// maybeLeave removes the archiver from a room it only joined by creating it.
func (r *Runner) maybeLeave(ctx context.Context, rc *roomRun) error {
	if !r.opts.LeaveRooms || rc.archiverIsMember || rc.archiver == nil || rc.dest == nil {
		return nil
	}

	m, err := r.deps.API.FindMembership(ctx, rc.dest.ID, webex.MembershipQuery{PersonID: rc.archiver.ID})
	outcome, err := contain(ctx, err)
	if err != nil {
		return err
	}
	if !outcome.OK() {
		r.record(rc, "leave room", outcome)
		return nil
	}
	if m == nil {
		rc.log.Info().Str("kind", string(domain.KindAlreadyLeft)).Msg("archiver is not a member")
		return nil
	}

	outcome, err = contain(ctx, r.deps.API.DeleteMembership(ctx, m.ID))
	if err != nil {
		return err
	}
	if outcome.Kind == domain.KindAlreadyLeft {
		return nil
	}
	r.record(rc, "leave room", outcome)
	if outcome.OK() {
		rc.summary.Left = true
		rc.log.Info().Msg("archiver left the room")
	}
	return nil
}
