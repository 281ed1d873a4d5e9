// Package archivexml decodes the structured markup stored alongside chat
// archive rows: the room configuration form and attachment message stanzas.
package archivexml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/lherron/chatmig/internal/domain"
)

// RoomNameField is the data-form variable holding a room's display name.
const RoomNameField = "muc#roomconfig_roomname"

// ErrNoAttachment is returned when a message stanza has no file-transfer element
// or the element carries no file name.
var ErrNoAttachment = errors.New("message has no advanced-file-transfer filename")

// roomConfig matches <x><field var="..."><value>...</value></field></x>.
// Element names are matched by local name so the jabber:x:data namespace is optional.
type roomConfig struct {
	XMLName xml.Name    `xml:"x"`
	Fields  []formField `xml:"field"`
}

type formField struct {
	Var    string   `xml:"var,attr"`
	Type   string   `xml:"type,attr"`
	Values []string `xml:"value"`
}

// messageStanza matches the archived <message> with its transfer sub-elements.
type messageStanza struct {
	XMLName  xml.Name      `xml:"message"`
	Transfer *fileTransfer `xml:"advanced-file-transfer"`
	HTML     *transferHTML `xml:"aft-html"`
}

type fileTransfer struct {
	FileName string `xml:"filename"`
	URL      string `xml:"url"`
	Size     string `xml:"size"`
}

type transferHTML struct {
	Body struct {
		Spans []struct {
			Divs []textDiv `xml:"div"`
		} `xml:"span"`
	} `xml:"body"`
}

// textDiv keeps the div's direct text nodes; nested elements are skipped.
type textDiv struct {
	Text string `xml:",chardata"`
}

// RoomTitle returns the room name from a room configuration blob.
// A missing or empty room-name field is a MalformedConfig error.
func RoomTitle(configBlob string) (string, error) {
	var cfg roomConfig
	if err := xml.Unmarshal([]byte(configBlob), &cfg); err != nil {
		return "", domain.Wrap(domain.KindMalformedConfig, "decode room config", err)
	}

	for _, f := range cfg.Fields {
		if f.Var != RoomNameField {
			continue
		}
		for _, v := range f.Values {
			if title := strings.TrimSpace(v); title != "" {
				return title, nil
			}
		}
		return "", domain.Errorf(domain.KindMalformedConfig, "decode room config", "field %s has no value", RoomNameField)
	}

	return "", domain.Errorf(domain.KindMalformedConfig, "decode room config", "field %s not found", RoomNameField)
}

// Attachment decodes the file name and optional inline text of an attachment message.
func Attachment(rawBlob string) (domain.AttachmentDescriptor, error) {
	var msg messageStanza
	if err := xml.Unmarshal([]byte(rawBlob), &msg); err != nil {
		return domain.AttachmentDescriptor{}, fmt.Errorf("decode message stanza: %w", err)
	}

	if msg.Transfer == nil || strings.TrimSpace(msg.Transfer.FileName) == "" {
		return domain.AttachmentDescriptor{}, ErrNoAttachment
	}

	return domain.AttachmentDescriptor{
		FileName:   strings.TrimSpace(msg.Transfer.FileName),
		InlineText: inlineText(msg.HTML),
	}, nil
}

// inlineText returns the text of the last div under aft-html/body/span,
// with runs of whitespace collapsed to single spaces.
func inlineText(h *transferHTML) string {
	if h == nil {
		return ""
	}

	text := ""
	for _, span := range h.Body.Spans {
		for _, div := range span.Divs {
			text = strings.Join(strings.Fields(div.Text), " ")
		}
	}
	return text
}
