package sqlite

import (
	"log/slog"
	"os"
	"time"

	"github.com/recruitflow/api/internal/db"
	"github.com/recruitflow/api/pkg/repository"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
type SQLiteRepo struct {
	conn   *db.DB
	logger *slog.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.AuthRepo = (*SQLiteRepo)(nil)
var _ repository.JobRepo = (*SQLiteRepo)(nil)
var _ repository.RunnerRepo = (*SQLiteRepo)(nil)
var _ repository.OutboxRepo = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &SQLiteRepo{conn: conn, logger: logger}
}

// Timestamps are stored as unix seconds.
func ts(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromTS(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func now() int64 {
	return ts(time.Now())
}
