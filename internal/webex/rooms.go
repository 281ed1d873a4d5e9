package webex

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/lherron/chatmig/internal/domain"
)

// Person is the identity behind the API token.
type Person struct {
	ID          string   `json:"id"`
	Emails      []string `json:"emails"`
	DisplayName string   `json:"displayName,omitempty"`
}

// Email returns the primary email address.
func (p Person) Email() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0]
}

// Room is a destination space.
type Room struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Me resolves the identity the client acts as.
func (c *Client) Me(ctx context.Context) (*Person, error) {
	resp, err := c.do(ctx, request{op: "get identity", method: http.MethodGet, path: "/people/me"})
	if err != nil {
		return nil, err
	}
	var p Person
	if err := decode(resp, "get identity", &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, domain.Errorf(domain.KindOperationFailed, "get identity", "response carries no person id")
	}
	return &p, nil
}

// ListRooms lists group rooms visible to the caller, following pagination links.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	q := url.Values{}
	q.Set("type", "group")
	q.Set("max", "1000")
	path := "/rooms?" + q.Encode()

	var rooms []Room
	for path != "" {
		resp, err := c.do(ctx, request{op: "list rooms", method: http.MethodGet, path: path})
		if err != nil {
			return nil, err
		}
		var page struct {
			Items []Room `json:"items"`
		}
		if err := decode(resp, "list rooms", &page); err != nil {
			return nil, err
		}
		for _, r := range page.Items {
			// Filter client side too; older API versions ignored the type parameter.
			if r.Type == "" || r.Type == "group" {
				rooms = append(rooms, r)
			}
		}
		path = nextLink(resp.header.Get("Link"))
	}
	return rooms, nil
}

// CreateRoom creates a group room with the given title.
func (c *Client) CreateRoom(ctx context.Context, title string) (*Room, error) {
	body := struct {
		Title string `json:"title"`
	}{Title: title}

	resp, err := c.do(ctx, request{op: "create room", method: http.MethodPost, path: "/rooms", body: jsonBody(body)})
	if err != nil {
		return nil, err
	}
	var r Room
	if err := decode(resp, "create room", &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, domain.Errorf(domain.KindOperationFailed, "create room", "response carries no room id")
	}
	return &r, nil
}

// nextLink extracts the rel="next" target of an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, p := range segs[1:] {
			p = strings.ReplaceAll(strings.TrimSpace(p), " ", "")
			if p == `rel="next"` || p == "rel=next" {
				return strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
			}
		}
	}
	return ""
}
