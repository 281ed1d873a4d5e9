package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lherron/chatmig/internal/db"
)

// TimestampLayout is how the fixture archive stores timestamps.
const TimestampLayout = "2006-01-02 15:04:05.000"

// TempArchive creates a temporary SQLite archive with the chat and transfer-log schema
func TempArchive(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "archive.db")

	database, err := db.Create(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test archive: %v", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}

// RoomConfigXML returns a room configuration form carrying the given room name
func RoomConfigXML(title string) string {
	return fmt.Sprintf(`<x xmlns='jabber:x:data' type='submit'>`+
		`<field type='hidden' var='FORM_TYPE'><value>http://jabber.org/protocol/muc#roomconfig</value></field>`+
		`<field type='text-single' var='muc#roomconfig_roomname'><value>%s</value></field>`+
		`</x>`, xmlEscape(title))
}

// AttachmentXML returns an archived message stanza for a file transfer
func AttachmentXML(fileName, inlineText string) string {
	html := ""
	if inlineText != "" {
		html = fmt.Sprintf(`<aft-html><body><span><div>%s</div></span></body></aft-html>`, xmlEscape(inlineText))
	}
	return fmt.Sprintf(`<message type='groupchat'><body>Your chat application does not support downloading this file</body>`+
		`<advanced-file-transfer><filename>%s</filename></advanced-file-transfer>%s</message>`, xmlEscape(fileName), html)
}

// SeedRoom inserts a room with a well-formed configuration blob
func SeedRoom(t *testing.T, database *db.DB, roomJID, title string) {
	t.Helper()
	SeedRoomConfig(t, database, roomJID, RoomConfigXML(title))
}

// SeedRoomConfig inserts a room with an arbitrary configuration blob
func SeedRoomConfig(t *testing.T, database *db.DB, roomJID, config string) {
	t.Helper()
	_, err := database.Exec(`INSERT INTO tc_rooms (room_jid, config) VALUES (?, ?)`, roomJID, config)
	if err != nil {
		t.Fatalf("Failed to seed room %s: %v", roomJID, err)
	}
}

// SeedMember inserts a room membership row with role 'none'
func SeedMember(t *testing.T, database *db.DB, roomJID, realJID, affiliation string) {
	t.Helper()
	_, err := database.Exec(`
		INSERT INTO tc_users (room_jid, real_jid, role, affiliation) VALUES (?, ?, 'none', ?)
	`, roomJID, realJID, affiliation)
	if err != nil {
		t.Fatalf("Failed to seed member %s: %v", realJID, err)
	}
}

// SeedMessage inserts a plain archived message
func SeedMessage(t *testing.T, database *db.DB, roomJID, from string, sentAt time.Time, body string) {
	t.Helper()
	seedMessage(t, database, roomJID, from, sentAt, body, "<message><body>"+xmlEscape(body)+"</body></message>")
}

// SeedAttachmentMessage inserts an archived attachment placeholder message
func SeedAttachmentMessage(t *testing.T, database *db.DB, roomJID, from string, sentAt time.Time, fileName, inlineText string) {
	t.Helper()
	seedMessage(t, database, roomJID, from, sentAt,
		"Your chat application does not support downloading this file",
		AttachmentXML(fileName, inlineText))
}

func seedMessage(t *testing.T, database *db.DB, roomJID, from string, sentAt time.Time, body, raw string) {
	t.Helper()
	_, err := database.Exec(`
		INSERT INTO tc_msgarchive (to_jid, from_jid, sent_date, body_string, message_string)
		VALUES (?, ?, ?, ?, ?)
	`, roomJID, from, sentAt.Format(TimestampLayout), body, raw)
	if err != nil {
		t.Fatalf("Failed to seed message: %v", err)
	}
}

// SeedTransfer inserts a file-transfer log record
func SeedTransfer(t *testing.T, database *db.DB, roomJID, server, remotePath, fileName string, at time.Time, size int64) {
	t.Helper()
	_, err := database.Exec(`
		INSERT INTO aft_log (to_jid, timestampvalue, method, file_server, file_path, real_filename, bytes_transferred)
		VALUES (?, ?, 'Post', ?, ?, ?, ?)
	`, roomJID, at.Format("2006-01-02 15:04:05"), server, remotePath, fileName, size)
	if err != nil {
		t.Fatalf("Failed to seed transfer: %v", err)
	}
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "'", "&apos;", `"`, "&quot;")
	return r.Replace(s)
}
