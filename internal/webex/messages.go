package webex

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/lherron/chatmig/internal/domain"
)

// Message is a posted message.
type Message struct {
	ID       string   `json:"id"`
	RoomID   string   `json:"roomId"`
	Markdown string   `json:"markdown,omitempty"`
	Files    []string `json:"files,omitempty"`
}

// PostMessage posts markdown text to a room.
func (c *Client) PostMessage(ctx context.Context, roomID, markdown string) (*Message, error) {
	body := struct {
		RoomID   string `json:"roomId"`
		Markdown string `json:"markdown"`
	}{RoomID: roomID, Markdown: markdown}

	resp, err := c.do(ctx, request{op: "post message", method: http.MethodPost, path: "/messages", body: jsonBody(body)})
	if err != nil {
		return nil, err
	}
	var m Message
	if err := decode(resp, "post message", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PostMessageWithFile posts markdown text with the file at path attached.
// contentType may be empty, in which case the part is sent as octet-stream.
func (c *Client) PostMessageWithFile(ctx context.Context, roomID, markdown, path, contentType string) (*Message, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, domain.Wrap(domain.KindOperationFailed, "post message with file", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Each attempt streams the file again; nothing is buffered in memory.
	build := func() (io.Reader, string, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", err
		}
		pr, pw := io.Pipe()
		w := multipart.NewWriter(pw)
		go func() {
			defer f.Close()
			pw.CloseWithError(writeFilePart(w, f, roomID, markdown, filepath.Base(path), contentType))
		}()
		return pr, w.FormDataContentType(), nil
	}

	resp, err := c.do(ctx, request{op: "post message with file", method: http.MethodPost, path: "/messages", body: build})
	if err != nil {
		return nil, err
	}
	var m Message
	if err := decode(resp, "post message with file", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func writeFilePart(w *multipart.Writer, src io.Reader, roomID, markdown, name, contentType string) error {
	if err := w.WriteField("roomId", roomID); err != nil {
		return err
	}
	if err := w.WriteField("markdown", markdown); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return w.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
