// Package transferlog looks up records in the managed file-transfer log.
package transferlog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lherron/chatmig/internal/db"
	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/source"
)

// TimestampLayout is the second-precision form the transfer log is keyed by.
const TimestampLayout = "2006-01-02 15:04:05"

// Log queries the aft_log table.
type Log struct {
	db *db.DB
}

// New creates a Log over an opened transfer-log database.
func New(database *db.DB) *Log {
	return &Log{db: database}
}

// FindTransfer returns the uploaded ('Post') record for fileName in room at
// exactly the given second, or nil if there is none.
func (l *Log) FindTransfer(ctx context.Context, room, fileName string, at time.Time) (*domain.TransferRecord, error) {
	rec := &domain.TransferRecord{Room: room, RealFileName: fileName}
	var size sql.NullInt64
	var ts any

	err := l.db.QueryRowContext(ctx, l.db.Rebind(`
		SELECT file_server, file_path, bytes_transferred, timestampvalue FROM aft_log
		WHERE method = 'Post' AND to_jid = ? AND timestampvalue = ? AND real_filename = ?
		LIMIT 1
	`), room, at.Format(TimestampLayout), fileName).Scan(&rec.Server, &rec.RemotePath, &size, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindSourceUnavailable, "query transfer log", err)
	}

	rec.SizeBytes = size.Int64
	if parsed, perr := source.ParseTimestamp(ts); perr == nil {
		rec.TransferredAt = parsed
	} else {
		rec.TransferredAt = at
	}
	return rec, nil
}
