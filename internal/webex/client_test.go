package webex

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/chatmig/internal/domain"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *recordedSleeps) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sleeps := &recordedSleeps{}
	c := New(Options{
		BaseURL: srv.URL,
		Token:   "secret",
		Sleep:   sleeps.sleep,
		Logger:  zerolog.Nop(),
	})
	return c, sleeps
}

func TestPostMessage_RetriesAfter429(t *testing.T) {
	var calls int
	var posted []string
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		posted = append(posted, body["markdown"])
		_, _ = io.WriteString(w, `{"id":"msg-1","roomId":"room-1"}`)
	}))

	msg, err := c.PostMessage(context.Background(), "room-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"hello"}, posted, "exactly one successful post")
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeps.delays)
}

func TestDo_RetriesWithoutCeiling(t *testing.T) {
	var calls int
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 25 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"id":"room-1","title":"T"}`)
	}))

	room, err := c.CreateRoom(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, "room-1", room.ID)
	assert.Len(t, sleeps.delays, 25)
}

func TestDo_RetryAfterInBody(t *testing.T) {
	var calls int
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"Retry-After": 7}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"m"}`)
	}))

	_, err := c.PostMessage(context.Background(), "room-1", "x")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, sleeps.delays)
}

func TestDo_RetryAfterDefault(t *testing.T) {
	var calls int
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"id":"m"}`)
	}))

	_, err := c.PostMessage(context.Background(), "room-1", "x")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second}, sleeps.delays)
}

func TestWaitDuration_HTTPDate(t *testing.T) {
	c := New(Options{Logger: zerolog.Nop()})
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return now }

	h := http.Header{}
	h.Set("Retry-After", now.Add(12*time.Second).Format(http.TimeFormat))
	assert.Equal(t, 12*time.Second, c.waitDuration(&response{header: h}))
}

func TestDo_UnauthorizedIsFatal(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"The request requires a valid access token set in the Authorization request header."}`)
	}))

	_, err := c.PostMessage(context.Background(), "room-1", "x")
	require.Error(t, err)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
	assert.True(t, domain.IsFatal(err))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDo_OtherFailureIsRecoverable(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Trackingid", "track-1")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Unable to post message"}`)
	}))

	_, err := c.PostMessage(context.Background(), "room-1", "x")
	require.Error(t, err)
	assert.Equal(t, domain.KindOperationFailed, domain.KindOf(err))
	assert.False(t, domain.IsFatal(err))
	assert.Contains(t, err.Error(), "Unable to post message")
	assert.Contains(t, err.Error(), "track-1")
}

func TestRequest_SendsBearerToken(t *testing.T) {
	var auth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"id":"p1","emails":["archiver@example.com"]}`)
	}))

	p, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "archiver@example.com", p.Email())
}

func TestListRooms_FollowsLinkAndFiltersGroups(t *testing.T) {
	var srvURL string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			assert.Equal(t, "group", r.URL.Query().Get("type"))
			w.Header().Set("Link", `<`+srvURL+`/rooms?cursor=2>; rel="next"`)
			_, _ = io.WriteString(w, `{"items":[{"id":"r1","title":"One","type":"group"},{"id":"d1","title":"Direct","type":"direct"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"items":[{"id":"r2","title":"Two","type":"group"}]}`)
	}))
	srvURL = c.baseURL

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "One", rooms[0].Title)
	assert.Equal(t, "Two", rooms[1].Title)
}

func TestAddMembership(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RoomID      string `json:"roomId"`
			PersonEmail string `json:"personEmail"`
			IsModerator bool   `json:"isModerator"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.PersonEmail == "dup@x.com" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		assert.True(t, body.IsModerator)
		_, _ = io.WriteString(w, `{"id":"mem-1","personId":"p-a","personEmail":"a@x.com","isModerator":true}`)
	}))

	m, err := c.AddMembership(context.Background(), "room-1", "a@x.com", true)
	require.NoError(t, err)
	assert.Equal(t, "p-a", m.PersonID)

	_, err = c.AddMembership(context.Background(), "room-1", "dup@x.com", true)
	require.Error(t, err)
	assert.Equal(t, domain.KindAlreadyMember, domain.KindOf(err))
	assert.False(t, domain.IsFatal(err))
}

func TestFindAndDeleteMembership(t *testing.T) {
	var deleted []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Get("roomId") == "room-1":
			assert.Equal(t, "p-me", r.URL.Query().Get("personId"))
			_, _ = io.WriteString(w, `{"items":[{"id":"mem-9","roomId":"room-1","personId":"p-me"},{"id":"mem-10","roomId":"room-1","personId":"p-me"}]}`)
		case r.Method == http.MethodGet:
			_, _ = io.WriteString(w, `{"items":[]}`)
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/gone"):
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodDelete:
			deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/memberships/"))
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	m, err := c.FindMembership(context.Background(), "room-1", MembershipQuery{PersonID: "p-me"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "mem-9", m.ID, "first listed membership wins")

	none, err := c.FindMembership(context.Background(), "room-2", MembershipQuery{PersonEmail: "me@x.com"})
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, c.DeleteMembership(context.Background(), "mem-9"))
	assert.Equal(t, []string{"mem-9"}, deleted)

	err = c.DeleteMembership(context.Background(), "gone")
	assert.Equal(t, domain.KindAlreadyLeft, domain.KindOf(err))
}

func TestPostMessageWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 data"), 0o644))

	var calls int
	var gotFile, gotMarkdown, gotRoom, gotName string
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/form-data", mediaType)
		assert.Equal(t, int64(-1), r.ContentLength, "file body is streamed, not buffered")

		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "roomId":
				gotRoom = string(data)
			case "markdown":
				gotMarkdown = string(data)
			case "files":
				gotFile = string(data)
				gotName = part.FileName()
			}
		}
		_, _ = io.WriteString(w, `{"id":"msg-2"}`)
	}))

	msg, err := c.PostMessageWithFile(context.Background(), "room-1", "see attached", path, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "msg-2", msg.ID)
	assert.Equal(t, "room-1", gotRoom)
	assert.Equal(t, "see attached", gotMarkdown)
	assert.Equal(t, "%PDF-1.4 data", gotFile, "the retried request carries the whole file again")
	assert.Equal(t, "report.pdf", gotName)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps.delays)
}

func TestPostMessageWithFile_MissingFile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := c.PostMessageWithFile(context.Background(), "room-1", "x", filepath.Join(t.TempDir(), "nope"), "")
	assert.Equal(t, domain.KindOperationFailed, domain.KindOf(err))
}

func TestNextLink(t *testing.T) {
	assert.Equal(t, "https://a/b?c=1", nextLink(`<https://a/b?c=1>; rel="next"`))
	assert.Equal(t, "https://a/n", nextLink(`<https://a/p>; rel="prev", <https://a/n>; rel="next"`))
	assert.Equal(t, "", nextLink(""))
}
