// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// 期限切れのセッションを削除し、期限切れのパスワード再設定トークンを
// 有効期限と一緒にクリアする。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	deleteExpiredSessions = `DELETE FROM sessions WHERE expires_at <= $1`
	// トークンと有効期限は必ず同時にクリアする（users_reset_pair制約）
	clearExpiredResets = `UPDATE users SET reset_token = NULL, reset_expires = NULL, updated_at = $1
		WHERE reset_expires IS NOT NULL AND reset_expires <= $1`
)

// Result は1回の実行で処理した件数。
type Result struct {
	SessionsDeleted int64
	ResetsCleared   int64
}

// CleanupJob は期限切れセッションと再設定トークンの定期削除ジョブ。
// 冪等で、対象がなくてもエラーにならない。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
	now    func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Run は期限切れのセッションを削除し、期限切れの再設定トークンをクリアする。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	now := j.now().UTC()

	var res Result
	var err error

	res.SessionsDeleted, err = j.exec(ctx, deleteExpiredSessions, now)
	if err != nil {
		j.logger.ErrorContext(ctx, "failed to delete expired sessions", slog.String("error", err.Error()))
		return res, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	res.ResetsCleared, err = j.exec(ctx, clearExpiredResets, now)
	if err != nil {
		j.logger.ErrorContext(ctx, "failed to clear expired reset tokens", slog.String("error", err.Error()))
		return res, fmt.Errorf("failed to clear expired reset tokens: %w", err)
	}

	j.logger.InfoContext(ctx, "cleanup job completed",
		slog.Int64("sessions_deleted", res.SessionsDeleted),
		slog.Int64("resets_cleared", res.ResetsCleared),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

// RunEvery は起動直後に1回実行し、その後intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。失敗はログに残して次回に持ち越す。
func (j *CleanupJob) RunEvery(ctx context.Context, interval time.Duration) {
	if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (j *CleanupJob) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
