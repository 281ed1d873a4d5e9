package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/chatmig/internal/config"
	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/fileserver"
	"github.com/lherron/chatmig/internal/journal"
	"github.com/lherron/chatmig/internal/testutil"
)

// setupTestEnv isolates config: HOME and cwd point at a fresh directory,
// CHATMIG_* variables are cleared and logs go under the temp directory.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "CHATMIG_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	t.Setenv("CHATMIG_LOG_DIR", filepath.Join(home, "logs"))
	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(home); err != nil {
		t.Fatal(err)
	}

	migrateOnDuplicate = "ask"
	migrateCheckExisting = false
	migrateIncludeFiles = false
	migrateRooms = nil
	migrateJournal = ""
	migrateMetricsFile = ""
	migrateLeaveRooms = false
	migrateFormat = "table"
	rollbackYes = false
	rollbackFormat = "table"
	journalShowFormat = "table"
	journalDiffMeta = false
	journalDiffContext = 3
	doctorJSON = false
	return home
}

// execute runs root with args and returns what it wrote to stdout and stderr.
func execute(t *testing.T, root *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeJournal(t *testing.T, path string, rooms ...domain.DestinationRoom) {
	t.Helper()
	j := journal.New(journal.Options{Path: path, RunID: "run-test"})
	j.SetArchiver("P1", "archiver@example.com")
	for _, r := range rooms {
		e := journal.NewEntry(r, "src-"+r.ID)
		e.AddMember(domain.DestinationMembership{Identity: "alice@example.com", IsModerator: true, PersonID: "PA"})
		require.NoError(t, j.Append(e))
	}
	require.NoError(t, j.Flush())
}

func TestVersion(t *testing.T) {
	setupTestEnv(t)
	out, _, err := execute(t, rootCmd, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chatmig version dev")
	assert.Contains(t, out, "journal schema: v1")
}

func TestInitArchive(t *testing.T) {
	home := setupTestEnv(t)
	path := filepath.Join(home, "staging", "archive.db")

	out, _, err := execute(t, rootAdmCmd, "", "init-archive", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created archive")
	assert.Contains(t, out, "applied 000001_archive.sql")

	out, _, err = execute(t, rootAdmCmd, "", "init-archive", path)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	assert.Contains(t, out, "Schema is up to date")
}

func TestInspect(t *testing.T) {
	setupTestEnv(t)
	archive := testutil.TempArchive(t)
	sent := time.Date(2020, 6, 1, 9, 30, 15, 0, time.UTC)
	testutil.SeedRoom(t, archive, "px@conference.example.com", "Project X")
	testutil.SeedMember(t, archive, "px@conference.example.com", "alice@example.com", "owner")
	testutil.SeedMessage(t, archive, "px@conference.example.com", "alice@example.com", sent, "hello")
	testutil.SeedMessage(t, archive, "px@conference.example.com", "alice@example.com", sent.Add(time.Minute), "again")

	out, _, err := execute(t, rootCmd, "", "inspect", "--archive", archive.Path(), "--format", "tsv")
	require.NoError(t, err)
	assert.Contains(t, out, "px@conference.example.com\tProject X\tinspected\t1\t2\t0\t0\t0")
}

func TestInspectRoomFilter(t *testing.T) {
	setupTestEnv(t)
	archive := testutil.TempArchive(t)
	testutil.SeedRoom(t, archive, "a@conference.example.com", "A")
	testutil.SeedRoom(t, archive, "b@conference.example.com", "B")

	out, _, err := execute(t, rootCmd, "", "inspect", "--archive", archive.Path(), "--room", "b@conference.example.com", "--format", "json")
	require.NoError(t, err)

	var summary struct {
		Rooms []struct {
			SourceRoom string `json:"source_room"`
		} `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary.Rooms, 1)
	assert.Equal(t, "b@conference.example.com", summary.Rooms[0].SourceRoom)
}

func TestMigrateRequiresToken(t *testing.T) {
	setupTestEnv(t)
	archive := testutil.TempArchive(t)

	_, _, err := execute(t, rootCmd, "", "migrate", "--archive", archive.Path())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_token")
}

func TestJournalShowAndDiff(t *testing.T) {
	home := setupTestEnv(t)
	a := filepath.Join(home, "a.json")
	b := filepath.Join(home, "b.json")
	writeJournal(t, a, domain.DestinationRoom{ID: "R1", Title: "Project X"})
	writeJournal(t, b, domain.DestinationRoom{ID: "R1", Title: "Project X"}, domain.DestinationRoom{ID: "R2", Title: "Ops"})

	out, _, err := execute(t, rootAdmCmd, "", "journal", "show", a)
	require.NoError(t, err)
	assert.Contains(t, out, "Archiver: archiver@example.com")
	assert.Contains(t, out, "R1")
	assert.Contains(t, out, "Project X")
	assert.NotContains(t, out, "Warning")

	out, _, err = execute(t, rootAdmCmd, "", "journal", "diff", a, a)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, _, err = execute(t, rootAdmCmd, "", "journal", "diff", a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "--- "+a)
	assert.Contains(t, out, "+++ "+b)
	assert.Contains(t, out, `+        "title": "Ops"`)
}

func TestRollback(t *testing.T) {
	home := setupTestEnv(t)
	path := filepath.Join(home, "journal.json")
	writeJournal(t, path,
		domain.DestinationRoom{ID: "R1", Title: "Project X"},
		domain.DestinationRoom{ID: "R2", Title: "Ops"},
	)

	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/people/me":
			w.Write([]byte(`{"id":"P1","emails":["archiver@example.com"]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/memberships":
			if r.URL.Query().Get("roomId") == "R1" {
				w.Write([]byte(`{"items":[{"id":"M1","roomId":"R1","personId":"P1"}]}`))
				return
			}
			w.Write([]byte(`{"items":[]}`))
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/memberships/"):
			deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/memberships/"))
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Setenv("CHATMIG_API_BASE_URL", srv.URL)
	t.Setenv("CHATMIG_API_TOKEN", "secret")

	_, errOut, err := execute(t, rootCmd, "n\n", "rollback", path)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Rollback cancelled")
	assert.Empty(t, deleted)

	out, _, err := execute(t, rootCmd, "", "rollback", path, "--yes", "--format", "tsv")
	require.NoError(t, err)
	assert.Equal(t, []string{"M1"}, deleted)
	assert.Contains(t, out, "R1\tProject X\tleft\t")
	assert.Contains(t, out, "R2\tOps\talready_left\t")
}

func TestDoctor(t *testing.T) {
	setupTestEnv(t)
	t.Setenv("CHATMIG_CREATE_ROOMS", "false")
	archive := testutil.TempArchive(t)
	testutil.SeedRoom(t, archive, "px@conference.example.com", "Project X")

	out, _, err := execute(t, rootAdmCmd, "", "doctor", "--archive", archive.Path(), "--json")
	require.NoError(t, err)

	var report doctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "warning", report.OverallStatus)
	assert.Zero(t, report.Errors)

	statuses := map[string]string{}
	for _, c := range report.Checks {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, "ok", statuses["config"])
	assert.Equal(t, "ok", statuses["schema_version"])
	assert.Equal(t, "ok", statuses["tc_rooms"])
	assert.Equal(t, "warning", statuses["tc_msgarchive"])
	assert.Equal(t, "warning", statuses["api_identity"])
}

func TestDoctorMissingArchive(t *testing.T) {
	home := setupTestEnv(t)
	t.Setenv("CHATMIG_CREATE_ROOMS", "false")

	out, _, err := execute(t, rootAdmCmd, "", "doctor", "--archive", filepath.Join(home, "missing.db"))
	require.Error(t, err)
	assert.Contains(t, out, "✗ archive_open")
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://mig:****@db:5432/tc", redactDSN("postgres://mig:hunter2@db:5432/tc"))
	assert.Equal(t, "/data/archive.db", redactDSN("/data/archive.db"))
	assert.Equal(t, "postgres://mig@db/tc", redactDSN("postgres://mig@db/tc"))
}

type mirrorSession struct {
	files map[string]string
}

func (s mirrorSession) Open(path string) (io.ReadCloser, error) {
	body, ok := s.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (mirrorSession) Close() error { return nil }

func TestFetcherForSwitchesToRecordServer(t *testing.T) {
	files := map[string]map[string]string{
		"aft-a.example.com": {},
		"aft-b.example.com": {"/report.pdf": "quarterly"},
	}
	var dialed []string
	dialer := fileserver.DialerFunc(func(_ context.Context, host string) (fileserver.Session, error) {
		dialed = append(dialed, host)
		return mirrorSession{files: files[host]}, nil
	})

	cfg := &config.Config{FileServerHost: "aft-a.example.com"}
	fetcher, closer, err := fetcherFor(context.Background(), cfg, dialer, zerolog.Nop())
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, []string{"aft-a.example.com"}, dialed, "configured host is dialled before any fetch")

	staged, err := fetcher.Fetch(context.Background(), "aft-b.example.com", "/report.pdf", filepath.Join(t.TempDir(), "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("quarterly")), staged.SizeBytes)
	assert.Equal(t, []string{"aft-a.example.com", "aft-b.example.com"}, dialed)
	assert.Equal(t, "aft-b.example.com", closer.Host())
}

func TestFetcherForUnreachableHostIsFatal(t *testing.T) {
	dialer := fileserver.DialerFunc(func(context.Context, string) (fileserver.Session, error) {
		return nil, errors.New("connection refused")
	})

	_, closer, err := fetcherFor(context.Background(), &config.Config{FileServerHost: "aft-a.example.com"}, dialer, zerolog.Nop())
	require.Error(t, err)
	defer closer.Close()
	assert.Equal(t, domain.KindTransferUnavailable, domain.KindOf(err))
}

func TestFetcherForLocalMirrorServesEveryRecord(t *testing.T) {
	mirror := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(mirror, "report.pdf"), []byte("quarterly"), 0o644))

	cfg := &config.Config{FileServerHost: "file://" + mirror}
	fetcher, closer, err := fetcherFor(context.Background(), cfg, newDialer(cfg), zerolog.Nop())
	require.NoError(t, err)
	defer closer.Close()

	_, err = fetcher.Fetch(context.Background(), "aft-b.example.com", "/report.pdf", filepath.Join(t.TempDir(), "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, mirror, closer.Host())
}
