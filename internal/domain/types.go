package domain

import (
	"strings"
	"time"
)

// AttachmentSentinel is the body text the chat archive stores in place of a
// message whose content was a file transfer.
const AttachmentSentinel = "Your chat application does not support downloading this file"

// Affiliation represents the source-side permission tier of a room member
type Affiliation string

const (
	AffiliationOwner  Affiliation = "owner"
	AffiliationAdmin  Affiliation = "admin"
	AffiliationMember Affiliation = "member"
	AffiliationNone   Affiliation = "none"
)

// Policy is the decision applied when a room title already exists at the destination
type Policy string

const (
	PolicySkip           Policy = "skip"
	PolicyMigrateAnyway  Policy = "migrate"
	PolicyAskInteractive Policy = "ask"
)

// SourceRoom represents a room read from the chat archive
type SourceRoom struct {
	ID         string `json:"room_id"`
	Title      string `json:"title"`
	ConfigBlob string `json:"-"`
}

// SourceMember represents a membership row read from the chat archive
type SourceMember struct {
	RoomID      string      `json:"room_id"`
	Identity    string      `json:"identity"`
	Affiliation Affiliation `json:"affiliation"`
}

// SourceMessage represents an archived message. SentAt is truncated to the second.
type SourceMessage struct {
	RoomID  string    `json:"room_id"`
	SentAt  time.Time `json:"sent_at"`
	Sender  string    `json:"sender"`
	Body    string    `json:"body"`
	RawBlob string    `json:"-"`
}

// HasAttachment reports whether the message body is the attachment placeholder
func (m SourceMessage) HasAttachment() bool {
	return strings.TrimSpace(m.Body) == AttachmentSentinel
}

// AttachmentDescriptor is decoded from the raw markup of an attachment message
type AttachmentDescriptor struct {
	FileName   string `json:"file_name"`
	InlineText string `json:"inline_text,omitempty"`
}

// TransferRecord is a row of the managed file-transfer log
type TransferRecord struct {
	Server        string    `json:"server"`
	RemotePath    string    `json:"remote_path"`
	SizeBytes     int64     `json:"size_bytes"`
	TransferredAt time.Time `json:"transferred_at"`
	Room          string    `json:"destination_room"`
	RealFileName  string    `json:"real_file_name"`
}

// DestinationRoom is a room created at the destination service
type DestinationRoom struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DestinationMembership is a membership added at the destination service.
// PersonID is empty when the identity was already a member.
type DestinationMembership struct {
	RoomID      string `json:"room_id"`
	Identity    string `json:"identity"`
	IsModerator bool   `json:"is_moderator"`
	PersonID    string `json:"person_id,omitempty"`
	PreExisting bool   `json:"pre_existing,omitempty"`
}
