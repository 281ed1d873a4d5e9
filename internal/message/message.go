// Package message renders archived chat messages as destination markdown.
package message

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/lherron/chatmig/internal/domain"
)

// SentAtLayout is the timestamp layout shown in the banner.
const SentAtLayout = "2006-01-02 15:04:05"

// Banner identifies what kind of archived message is being rendered.
type Banner string

const (
	BannerPlain          Banner = "(Archived message)"
	BannerAttachment     Banner = "(Archived message with attachment)"
	BannerNotFound       Banner = "(Archived message with attachment. Error: Unable to load file: Transfer record not found..)"
	BannerTooLarge       Banner = "(Archived message with attachment. Error: Unable to load file: File size is too big..)"
	BannerDownloadFailed Banner = "(Archived message with attachment. Error: Unable to load file: Download failed..)"
)

// NoticeBanner returns the banner substituted for an attachment that could not be delivered.
func NoticeBanner(kind domain.Kind) Banner {
	switch kind {
	case domain.KindCorrelationMiss:
		return BannerNotFound
	case domain.KindDeliveryTooLarge:
		return BannerTooLarge
	default:
		return BannerDownloadFailed
	}
}

// Transformer renders messages. SourceDomain and DestDomain drive sender
// identity substitution; both empty disables it.
type Transformer struct {
	SourceDomain string
	DestDomain   string
}

// Sender maps a source identity to its destination identity.
func (t Transformer) Sender(identity string) string {
	return domain.SubstituteDomain(identity, t.SourceDomain, t.DestDomain)
}

// Render formats a plain archived message.
func (t Transformer) Render(sender string, sentAt time.Time, body string) string {
	return t.RenderWith(BannerPlain, sender, sentAt, body)
}

// RenderWith formats a message under the given banner.
//
// The result is plain markdown with real newlines. Transport escaping is the
// job of the request serializer, so quotes and newlines are left intact here.
func (t Transformer) RenderWith(banner Banner, sender string, sentAt time.Time, body string) string {
	var b strings.Builder
	b.WriteString(string(banner))
	b.WriteString("\n**From: <@personEmail:")
	b.WriteString(t.Sender(sender))
	b.WriteString(">**\t```at: ")
	b.WriteString(sentAt.Format(SentAtLayout))
	b.WriteString("```\n")
	b.WriteString(CleanBody(body))
	return b.String()
}

// CleanBody normalizes archived text for the destination: NFC composition,
// LF line endings, and no control characters other than newline and tab.
func CleanBody(body string) string {
	body = norm.NFC.String(body)
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, body)
}
