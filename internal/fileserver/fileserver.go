// Package fileserver retrieves attachment bytes from the managed file-transfer
// servers. Exactly one connection is open at a time; it is swapped when a
// record names a different server.
package fileserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog"

	"github.com/lherron/chatmig/internal/attach"
	"github.com/lherron/chatmig/internal/domain"
)

// Session is an open connection to one file server.
type Session interface {
	Open(path string) (io.ReadCloser, error)
	Close() error
}

// Dialer opens a Session to host.
type Dialer interface {
	Dial(ctx context.Context, host string) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, host string) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, host string) (Session, error) {
	return f(ctx, host)
}

// Fetcher downloads remote files through a single live Session.
type Fetcher struct {
	dialer  Dialer
	log     zerolog.Logger
	host    string
	session Session
	dials   int
}

// New creates a Fetcher. No connection is made until the first Fetch.
func New(dialer Dialer, log zerolog.Logger) *Fetcher {
	return &Fetcher{dialer: dialer, log: log}
}

// Host returns the server of the open session, or "" if none is open.
func (f *Fetcher) Host() string {
	return f.host
}

// Dials returns how many connections have been established.
func (f *Fetcher) Dials() int {
	return f.dials
}

// Connect ensures the open session is to host, closing any session to another server.
// Failure to connect is fatal for the run.
func (f *Fetcher) Connect(ctx context.Context, host string) error {
	if f.session != nil && f.host == host {
		return nil
	}
	if f.session != nil {
		f.log.Info().Str("from", f.host).Str("to", host).Msg("switching file server connection")
		if err := f.session.Close(); err != nil {
			f.log.Warn().Err(err).Str("server", f.host).Msg("close file server session")
		}
		f.session = nil
		f.host = ""
	}

	sess, err := f.dialer.Dial(ctx, host)
	if err != nil {
		return domain.Wrap(domain.KindTransferUnavailable, "connect file server "+host, err)
	}
	f.session = sess
	f.host = host
	f.dials++
	f.log.Info().Str("server", host).Msg("connected to file server")
	return nil
}

// Fetch downloads remotePath on host into localPath and returns the staged file.
// A missing or unreadable remote file is KindOperationFailed; an unreachable
// server is KindTransferUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, host, remotePath, localPath string) (attach.Staged, error) {
	if err := f.Connect(ctx, host); err != nil {
		return attach.Staged{}, err
	}

	src, err := f.session.Open(remotePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("remote file missing: %w", err)
		}
		return attach.Staged{}, domain.Wrap(domain.KindOperationFailed, "download "+remotePath, err)
	}
	defer src.Close()

	size, sum, err := attach.WriteFrom(src, localPath)
	if err != nil {
		return attach.Staged{}, domain.Wrap(domain.KindOperationFailed, "download "+remotePath, err)
	}

	f.log.Debug().
		Str("server", host).
		Str("remote_path", remotePath).
		Str("local_path", localPath).
		Int64("size_bytes", size).
		Str("sha256", sum).
		Msg("file downloaded")

	return attach.Staged{
		Path:      localPath,
		FileName:  attach.SafeName(localPath),
		MimeType:  attach.DetectMimeType(localPath),
		SizeBytes: size,
		Checksum:  sum,
	}, nil
}

// Close closes the open session, if any.
func (f *Fetcher) Close() error {
	if f.session == nil {
		return nil
	}
	err := f.session.Close()
	f.session = nil
	f.host = ""
	if err != nil {
		return fmt.Errorf("close file server session: %w", err)
	}
	return nil
}

// LocalDialer serves files from the local filesystem, with host as the root
// directory. It backs staging runs against an exported copy of the file store.
type LocalDialer struct{}

func (LocalDialer) Dial(_ context.Context, host string) (Session, error) {
	info, err := os.Stat(host)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", host)
	}
	return localSession{root: os.DirFS(host)}, nil
}

type localSession struct {
	root fs.FS
}

func (s localSession) Open(path string) (io.ReadCloser, error) {
	return s.root.Open(trimRoot(path))
}

func (localSession) Close() error { return nil }

func trimRoot(path string) string {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return "."
	}
	return path
}
