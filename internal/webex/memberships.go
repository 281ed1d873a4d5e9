package webex

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/lherron/chatmig/internal/domain"
)

// Membership links a person to a room.
type Membership struct {
	ID          string `json:"id"`
	RoomID      string `json:"roomId"`
	PersonID    string `json:"personId"`
	PersonEmail string `json:"personEmail"`
	IsModerator bool   `json:"isModerator"`
}

// MembershipQuery selects a membership by person email or person id.
type MembershipQuery struct {
	PersonEmail string
	PersonID    string
}

// AddMembership adds a person to a room. A 409 means the person is already
// a member and is reported as a KindAlreadyMember error, not OperationFailed.
func (c *Client) AddMembership(ctx context.Context, roomID, email string, moderator bool) (*Membership, error) {
	body := struct {
		RoomID      string `json:"roomId"`
		PersonEmail string `json:"personEmail"`
		IsModerator bool   `json:"isModerator"`
	}{RoomID: roomID, PersonEmail: email, IsModerator: moderator}

	resp, err := c.do(ctx, request{op: "add membership", method: http.MethodPost, path: "/memberships", body: jsonBody(body)})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, &domain.Error{Kind: domain.KindAlreadyMember, Op: "add membership", Err: err}
		}
		return nil, err
	}
	var m Membership
	if err := decode(resp, "add membership", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMembership looks up a person's membership in a room.
// It returns nil, nil when the person is not a member.
func (c *Client) FindMembership(ctx context.Context, roomID string, q MembershipQuery) (*Membership, error) {
	v := url.Values{}
	v.Set("roomId", roomID)
	if q.PersonID != "" {
		v.Set("personId", q.PersonID)
	}
	if q.PersonEmail != "" {
		v.Set("personEmail", q.PersonEmail)
	}

	resp, err := c.do(ctx, request{op: "get membership", method: http.MethodGet, path: "/memberships?" + v.Encode()})
	if err != nil {
		// A deleted room or one the caller already left lists as 404.
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var page struct {
		Items []Membership `json:"items"`
	}
	if err := decode(resp, "get membership", &page); err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return &page.Items[0], nil
}

// DeleteMembership removes a membership. A 404 is reported as KindAlreadyLeft.
func (c *Client) DeleteMembership(ctx context.Context, membershipID string) error {
	_, err := c.do(ctx, request{op: "delete membership", method: http.MethodDelete, path: "/memberships/" + url.PathEscape(membershipID)})
	if errors.Is(err, ErrNotFound) {
		return &domain.Error{Kind: domain.KindAlreadyLeft, Op: "delete membership", Err: err}
	}
	return err
}
