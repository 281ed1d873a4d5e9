// Package correlate matches attachment placeholder messages to file-transfer
// log records. The two systems are clocked independently, so a record is
// searched for at the message's second and then within a bounded window:
// earlier offsets first, since transfer-log writes usually precede the chat log.
package correlate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lherron/chatmig/internal/domain"
)

const (
	// DefaultWindow is the correlation window in seconds on each side of sent_at.
	DefaultWindow = 3

	// DefaultMaxBytes is the delivery limit; records at or above it are not posted.
	DefaultMaxBytes int64 = 100_000_000
)

// Lookup finds a transfer record at exactly one second.
// It returns nil, nil when no record exists.
type Lookup interface {
	FindTransfer(ctx context.Context, room, fileName string, at time.Time) (*domain.TransferRecord, error)
}

// Options configures the correlator.
type Options struct {
	Window   int
	MaxBytes int64
}

// Result is the outcome of one correlation.
//
// Kind is empty when a deliverable record was found, KindCorrelationMiss when
// no record exists within the window, and KindDeliveryTooLarge when a record
// was found but is at or above the size limit. Record is set in both the
// success and the too-large case.
type Result struct {
	Kind   domain.Kind
	Record *domain.TransferRecord
	Offset int
	Probes []int
}

// Found reports whether a transfer record was located.
func (r Result) Found() bool {
	return r.Record != nil
}

// Correlator runs the window search.
type Correlator struct {
	lookup Lookup
	opts   Options
	log    zerolog.Logger
}

// New creates a Correlator. Zero option values fall back to the defaults.
func New(lookup Lookup, opts Options, log zerolog.Logger) *Correlator {
	if opts.Window < 0 {
		opts.Window = 0
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Correlator{lookup: lookup, opts: opts, log: log}
}

// Offsets returns the probe order for a window: 0, -1..-w, then +1..+w.
func Offsets(window int) []int {
	offsets := make([]int, 0, 2*window+1)
	offsets = append(offsets, 0)
	for i := 1; i <= window; i++ {
		offsets = append(offsets, -i)
	}
	for i := 1; i <= window; i++ {
		offsets = append(offsets, i)
	}
	return offsets
}

// Correlate searches for the transfer record of fileName posted to room around sentAt.
// Lookup failures are returned as errors; a miss is a Result, not an error.
func (c *Correlator) Correlate(ctx context.Context, room string, sentAt time.Time, fileName string) (Result, error) {
	base := sentAt.Truncate(time.Second)
	var res Result

	for _, offset := range Offsets(c.opts.Window) {
		at := base.Add(time.Duration(offset) * time.Second)
		res.Probes = append(res.Probes, offset)

		rec, err := c.lookup.FindTransfer(ctx, room, fileName, at)
		if err != nil {
			return res, err
		}
		if rec == nil {
			c.log.Debug().Str("file", fileName).Int("offset", offset).Msg("no transfer record")
			continue
		}

		res.Record = rec
		res.Offset = offset
		if rec.SizeBytes >= c.opts.MaxBytes {
			res.Kind = domain.KindDeliveryTooLarge
			c.log.Warn().
				Str("file", fileName).
				Int64("size_bytes", rec.SizeBytes).
				Int64("limit_bytes", c.opts.MaxBytes).
				Msg("transfer record found but file is too large to deliver")
			return res, nil
		}

		c.log.Info().
			Str("file", fileName).
			Str("server", rec.Server).
			Str("remote_path", rec.RemotePath).
			Int("offset", offset).
			Msg("transfer record found")
		return res, nil
	}

	res.Kind = domain.KindCorrelationMiss
	c.log.Warn().
		Str("file", fileName).
		Time("sent_at", base).
		Int("window", c.opts.Window).
		Msg("no transfer record within window")
	return res, nil
}
