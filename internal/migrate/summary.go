package migrate

import "time"

// Status is how a room ended.
type Status string

const (
	StatusMigrated  Status = "migrated"
	StatusInspected Status = "inspected"
	StatusSkipped   Status = "skipped"
	StatusMalformed Status = "malformed"
	StatusFailed    Status = "failed"
)

// RoomSummary describes one processed room.
type RoomSummary struct {
	SourceRoom         string `json:"source_room" yaml:"source_room"`
	Title              string `json:"title" yaml:"title"`
	DestinationID      string `json:"destination_id,omitempty" yaml:"destination_id,omitempty"`
	Status             Status `json:"status" yaml:"status"`
	Members            int    `json:"members" yaml:"members"`
	PreExisting        int    `json:"pre_existing,omitempty" yaml:"pre_existing,omitempty"`
	Messages           int    `json:"messages" yaml:"messages"`
	Posted             int    `json:"posted" yaml:"posted"`
	Attachments        int    `json:"attachments" yaml:"attachments"`
	AttachmentsMissing int    `json:"attachments_missing,omitempty" yaml:"attachments_missing,omitempty"`
	Anomalies          int    `json:"anomalies" yaml:"anomalies"`
	Left               bool   `json:"left,omitempty" yaml:"left,omitempty"`
	Detail             string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Totals aggregates room summaries.
type Totals struct {
	Rooms       int `json:"rooms" yaml:"rooms"`
	Migrated    int `json:"migrated" yaml:"migrated"`
	Skipped     int `json:"skipped" yaml:"skipped"`
	Failed      int `json:"failed" yaml:"failed"`
	Members     int `json:"members" yaml:"members"`
	Messages    int `json:"messages" yaml:"messages"`
	Posted      int `json:"posted" yaml:"posted"`
	Attachments int `json:"attachments" yaml:"attachments"`
	Anomalies   int `json:"anomalies" yaml:"anomalies"`
}

// Summary is the result of a run.
type Summary struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Rooms      []RoomSummary `json:"rooms" yaml:"rooms"`
	Totals     Totals        `json:"totals" yaml:"totals"`
}

func (s *Summary) add(rs RoomSummary) {
	s.Rooms = append(s.Rooms, rs)
	s.Totals.Rooms++
	switch rs.Status {
	case StatusMigrated, StatusInspected:
		s.Totals.Migrated++
	case StatusSkipped:
		s.Totals.Skipped++
	case StatusMalformed, StatusFailed:
		s.Totals.Failed++
	}
	s.Totals.Members += rs.Members
	s.Totals.Messages += rs.Messages
	s.Totals.Posted += rs.Posted
	s.Totals.Attachments += rs.Attachments
	s.Totals.Anomalies += rs.Anomalies
}
