package render

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/journal"
	"github.com/lherron/chatmig/internal/migrate"
	"github.com/lherron/chatmig/internal/rollback"
)

func sampleSummary() *migrate.Summary {
	return &migrate.Summary{
		RunID: "run-1",
		Rooms: []migrate.RoomSummary{
			{SourceRoom: "px@conf", Title: "Project X", Status: migrate.StatusMigrated, Members: 2, Messages: 3, Posted: 3, Attachments: 1},
			{SourceRoom: "old@conf", Title: "Old", Status: migrate.StatusSkipped},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)

	f, err = ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Format: FormatTable})
	require.NoError(t, r.RenderTable([]string{"A", "LONG"}, [][]string{{"xyz", "1"}, {"q", "22"}}))

	want := "A    LONG\n" +
		"---  ----\n" +
		"xyz  1\n" +
		"q    22\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Format: FormatTable})
	require.NoError(t, r.RenderTable([]string{"A"}, nil))
	assert.Empty(t, buf.String())
}

func TestRenderSummaryFormats(t *testing.T) {
	summary := sampleSummary()

	var tsv bytes.Buffer
	require.NoError(t, NewRenderer(&tsv, Options{Format: FormatTSV}).Render(summary, SummaryView{summary}))
	assert.Equal(t,
		"SOURCE ROOM\tTITLE\tSTATUS\tMEMBERS\tMESSAGES\tPOSTED\tATTACHMENTS\tANOMALIES\n"+
			"px@conf\tProject X\tmigrated\t2\t3\t3\t1\t0\n"+
			"old@conf\tOld\tskipped\t0\t0\t0\t0\t0\n",
		tsv.String())

	var js bytes.Buffer
	require.NoError(t, NewRenderer(&js, Options{Format: FormatJSON}).Render(summary, SummaryView{summary}))
	var decoded migrate.Summary
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Len(t, decoded.Rooms, 2)

	var ym bytes.Buffer
	require.NoError(t, NewRenderer(&ym, Options{Format: FormatYAML}).Render(summary, SummaryView{summary}))
	var generic map[string]any
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &generic))
	assert.Equal(t, "run-1", generic["run_id"])
}

func TestJournalView(t *testing.T) {
	doc := &journal.Document{Rooms: []journal.Entry{{
		Room:       journal.Room{ID: "R1", Title: "Project X"},
		SourceRoom: "px@conf",
		Members: []journal.Member{
			{Identity: "alice@example.com", IsModerator: true},
			{Identity: "bob@example.com"},
		},
		Messages:  4,
		Anomalies: []journal.Anomaly{{Kind: domain.KindCorrelationMiss, Op: "correlate"}},
	}}}

	view := JournalView{doc}
	assert.Equal(t, [][]string{{"R1", "Project X", "px@conf", "2", "1", "4", "1"}}, view.Rows())
}

func TestReportView(t *testing.T) {
	report := &rollback.Report{Rooms: []rollback.RoomResult{
		{RoomID: "R1", Title: "A", MembershipID: "M1"},
		{RoomID: "R2", Title: "B", Kind: domain.KindAlreadyLeft},
		{RoomID: "R3", Title: "C", Kind: domain.KindOperationFailed, Detail: "boom"},
	}}

	assert.Equal(t, [][]string{
		{"R1", "A", "left", ""},
		{"R2", "B", "already_left", ""},
		{"R3", "C", "operation_failed", "boom"},
	}, ReportView{report}.Rows())
}
