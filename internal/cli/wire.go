package cli

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lherron/chatmig/internal/attach"
	"github.com/lherron/chatmig/internal/config"
	"github.com/lherron/chatmig/internal/correlate"
	"github.com/lherron/chatmig/internal/fileserver"
	"github.com/lherron/chatmig/internal/migrate"
	"github.com/lherron/chatmig/internal/rollback"
	"github.com/lherron/chatmig/internal/source"
	"github.com/lherron/chatmig/internal/transferlog"
	"github.com/lherron/chatmig/internal/webex"
)

var (
	_ migrate.API        = (*webex.Client)(nil)
	_ rollback.API       = (*webex.Client)(nil)
	_ migrate.Source     = (*source.Extractor)(nil)
	_ migrate.Correlator = (*correlate.Correlator)(nil)
	_ migrate.Fetcher    = (*fileserver.Fetcher)(nil)
	_ correlate.Lookup   = (*transferlog.Log)(nil)
)

// localHostPrefix marks a file_server_host that is a local directory
// holding a copy of the transfer server's files.
const localHostPrefix = "file://"

func newClient(cfg *config.Config, rec webex.Recorder, log zerolog.Logger) *webex.Client {
	return webex.New(webex.Options{
		BaseURL:           cfg.APIBaseURL,
		Token:             cfg.APIToken,
		Timeout:           cfg.HTTPTimeout(),
		DefaultRetryAfter: cfg.DefaultRetryAfter(),
		Recorder:          rec,
		Logger:            log.With().Str("component", "webex").Logger(),
	})
}

func newDialer(cfg *config.Config) fileserver.Dialer {
	if strings.HasPrefix(cfg.FileServerHost, localHostPrefix) {
		return fileserver.LocalDialer{}
	}
	return fileserver.SFTPDialer{
		User:           cfg.FileServerUser,
		Password:       cfg.FileServerPassword,
		KnownHostsFile: cfg.FileServerKnownHosts,
		Timeout:        30 * time.Second,
	}
}

// hostOverride sends every fetch to one local mirror directory instead of
// the server named by the transfer record.
type hostOverride struct {
	*fileserver.Fetcher
	host string
}

func (h hostOverride) Fetch(ctx context.Context, _ string, remotePath, localPath string) (attach.Staged, error) {
	return h.Fetcher.Fetch(ctx, h.host, remotePath, localPath)
}

// fetcherFor returns the fetcher the pipeline should use and the underlying
// fetcher to close when the run ends. A local mirror serves every record.
// A remote file_server_host is only the first connection: it is dialled
// eagerly and later records still switch to the server they name.
func fetcherFor(ctx context.Context, cfg *config.Config, dialer fileserver.Dialer, log zerolog.Logger) (migrate.Fetcher, *fileserver.Fetcher, error) {
	f := fileserver.New(dialer, log.With().Str("component", "fileserver").Logger())
	switch {
	case cfg.FileServerHost == "":
		return f, f, nil
	case strings.HasPrefix(cfg.FileServerHost, localHostPrefix):
		return hostOverride{Fetcher: f, host: strings.TrimPrefix(cfg.FileServerHost, localHostPrefix)}, f, nil
	}
	if err := f.Connect(ctx, cfg.FileServerHost); err != nil {
		return nil, f, err
	}
	return f, f, nil
}
