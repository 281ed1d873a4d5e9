package migrate

import (
	"context"
	"errors"

	"github.com/lherron/chatmig/internal/archivexml"
	"github.com/lherron/chatmig/internal/attach"
	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/message"
)

// postMessages posts the room's messages in extraction order.
func (r *Runner) postMessages(ctx context.Context, rc *roomRun) error {
	for msg, err := range r.deps.Source.Messages(ctx, rc.src.ID) {
		if err != nil {
			return err
		}
		rc.summary.Messages++
		rc.log.Debug().
			Time("sent_at", msg.SentAt).
			Str("from", msg.Sender).
			Bool("attachment", msg.HasAttachment()).
			Msg("message")

		if msg.HasAttachment() && r.opts.IncludeFiles {
			rc.summary.Attachments++
			if err := r.postAttachment(ctx, rc, msg); err != nil {
				return err
			}
			continue
		}

		text := r.deps.Transformer.Render(msg.Sender, msg.SentAt, msg.Body)
		if err := r.post(ctx, rc, "post message", "text", text); err != nil {
			return err
		}
	}
	return nil
}

// postAttachment correlates an attachment placeholder to its transfer record
// and posts the file, or a notice explaining why the file is missing.
func (r *Runner) postAttachment(ctx context.Context, rc *roomRun, msg domain.SourceMessage) error {
	tr := r.deps.Transformer

	desc, err := archivexml.Attachment(msg.RawBlob)
	if err != nil {
		// Without a file name there is nothing to correlate; keep the text.
		r.record(rc, "decode attachment", domain.Recovered(domain.KindOperationFailed, err.Error()))
		text := tr.Render(msg.Sender, msg.SentAt, msg.Body)
		return r.post(ctx, rc, "post message", "text", text)
	}

	res, err := r.deps.Correlator.Correlate(ctx, rc.src.ID, msg.SentAt, desc.FileName)
	if err != nil {
		return err
	}
	if res.Kind != "" {
		rc.summary.AttachmentsMissing++
		r.record(rc, "correlate attachment", domain.Recovered(res.Kind, desc.FileName))
		text := tr.RenderWith(message.NoticeBanner(res.Kind), msg.Sender, msg.SentAt, desc.InlineText)
		return r.post(ctx, rc, "post notice", "notice", text)
	}
	if !r.opts.CreateRooms {
		return nil
	}

	rec := res.Record
	if err := attach.EnsureRunDir(r.opts.DownloadDir, rc.runID); err != nil {
		return domain.Wrap(domain.KindTransferUnavailable, "create staging directory", err)
	}
	local := attach.StagePath(r.opts.DownloadDir, rc.runID, desc.FileName)
	staged, err := r.deps.Fetcher.Fetch(ctx, rec.Server, rec.RemotePath, local)
	if err != nil {
		if domain.IsFatal(err) || errors.Is(err, context.Canceled) {
			return err
		}
		rc.summary.AttachmentsMissing++
		r.record(rc, "download attachment", domain.Recovered(domain.KindOperationFailed, err.Error()))
		text := tr.RenderWith(message.BannerDownloadFailed, msg.Sender, msg.SentAt, desc.InlineText)
		return r.post(ctx, rc, "post notice", "notice", text)
	}
	defer func() {
		if err := attach.Remove(staged.Path); err != nil {
			rc.log.Warn().Err(err).Str("path", staged.Path).Msg("remove staged file")
		}
	}()

	if err := attach.ValidateSize(staged.SizeBytes, r.opts.MaxAttachmentBytes); err != nil {
		rc.summary.AttachmentsMissing++
		r.record(rc, "download attachment", domain.Recovered(domain.KindDeliveryTooLarge, err.Error()))
		text := tr.RenderWith(message.BannerTooLarge, msg.Sender, msg.SentAt, desc.InlineText)
		return r.post(ctx, rc, "post notice", "notice", text)
	}

	text := tr.RenderWith(message.BannerAttachment, msg.Sender, msg.SentAt, desc.InlineText)
	_, err = r.deps.API.PostMessageWithFile(ctx, rc.dest.ID, text, staged.Path, staged.MimeType)
	return r.posted(ctx, rc, "post attachment", "attachment", err)
}

// post sends one text message. In inspect mode nothing is sent.
func (r *Runner) post(ctx context.Context, rc *roomRun, op, kind, text string) error {
	if !r.opts.CreateRooms {
		return nil
	}
	_, err := r.deps.API.PostMessage(ctx, rc.dest.ID, text)
	return r.posted(ctx, rc, op, kind, err)
}

func (r *Runner) posted(ctx context.Context, rc *roomRun, op, kind string, err error) error {
	outcome, err := contain(ctx, err)
	if err != nil {
		return err
	}
	if !outcome.OK() {
		r.record(rc, op, outcome)
		return nil
	}
	rc.summary.Posted++
	rc.entry.Messages++
	if r.deps.Metrics != nil {
		r.deps.Metrics.MessagePosted(kind)
	}
	return nil
}
