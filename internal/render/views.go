package render

import (
	"strconv"
	"strings"

	"github.com/lherron/chatmig/internal/journal"
	"github.com/lherron/chatmig/internal/migrate"
	"github.com/lherron/chatmig/internal/rollback"
)

// SummaryView lists the rooms of a migrate or inspect run.
type SummaryView struct{ *migrate.Summary }

func (v SummaryView) Headers() []string {
	return []string{"SOURCE ROOM", "TITLE", "STATUS", "MEMBERS", "MESSAGES", "POSTED", "ATTACHMENTS", "ANOMALIES"}
}

func (v SummaryView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Rooms))
	for _, rs := range v.Rooms {
		rows = append(rows, []string{
			rs.SourceRoom,
			rs.Title,
			string(rs.Status),
			strconv.Itoa(rs.Members),
			strconv.Itoa(rs.Messages),
			strconv.Itoa(rs.Posted),
			strconv.Itoa(rs.Attachments),
			strconv.Itoa(rs.Anomalies),
		})
	}
	return rows
}

// JournalView lists the rooms recorded in a journal.
type JournalView struct{ *journal.Document }

func (v JournalView) Headers() []string {
	return []string{"ROOM ID", "TITLE", "SOURCE ROOM", "MEMBERS", "MODERATORS", "MESSAGES", "ANOMALIES"}
}

func (v JournalView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Rooms))
	for _, e := range v.Rooms {
		moderators := 0
		for _, m := range e.Members {
			if m.IsModerator {
				moderators++
			}
		}
		rows = append(rows, []string{
			e.Room.ID,
			e.Room.Title,
			e.SourceRoom,
			strconv.Itoa(len(e.Members)),
			strconv.Itoa(moderators),
			strconv.Itoa(e.Messages),
			strconv.Itoa(len(e.Anomalies)),
		})
	}
	return rows
}

// ReportView lists per-room rollback results.
type ReportView struct{ *rollback.Report }

func (v ReportView) Headers() []string {
	return []string{"ROOM ID", "TITLE", "RESULT", "DETAIL"}
}

func (v ReportView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Rooms))
	for _, r := range v.Rooms {
		result := "left"
		if !r.Left() {
			result = strings.ToLower(string(r.Kind))
		}
		rows = append(rows, []string{r.RoomID, r.Title, result, r.Detail})
	}
	return rows
}
