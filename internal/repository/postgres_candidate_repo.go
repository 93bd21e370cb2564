package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/devjobs/internal/model"
)

// PostgresCandidateRepo はPostgreSQLを使用した応募者リポジトリ。
type PostgresCandidateRepo struct {
	db *sql.DB
}

// NewPostgresCandidateRepo はPostgresCandidateRepoを生成する。
func NewPostgresCandidateRepo(db *sql.DB) *PostgresCandidateRepo {
	return &PostgresCandidateRepo{db: db}
}

// Append は応募を追加する。求人が存在しない場合は外部キー違反となる。
func (r *PostgresCandidateRepo) Append(ctx context.Context, c *model.Candidate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO candidates (id, vacancy_id, name, email, resume, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.VacancyID, c.Name, c.Email, c.Resume, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert candidate: %w", err)
	}
	return nil
}

// ListByVacancy は応募順（古い順）に応募者を返す。
func (r *PostgresCandidateRepo) ListByVacancy(ctx context.Context, vacancyID uuid.UUID) ([]model.Candidate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, vacancy_id, name, email, resume, created_at
		 FROM candidates
		 WHERE vacancy_id = $1
		 ORDER BY created_at ASC, id`,
		vacancyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.ID, &c.VacancyID, &c.Name, &c.Email, &c.Resume, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return candidates, nil
}

// FindByResume は求人と履歴書ファイル名で応募を検索する。
func (r *PostgresCandidateRepo) FindByResume(ctx context.Context, vacancyID uuid.UUID, resume string) (*model.Candidate, error) {
	c := &model.Candidate{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, vacancy_id, name, email, resume, created_at
		 FROM candidates
		 WHERE vacancy_id = $1 AND resume = $2`,
		vacancyID, resume,
	).Scan(&c.ID, &c.VacancyID, &c.Name, &c.Email, &c.Resume, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find candidate: %w", err)
	}
	return c, nil
}

// compile-time interface check
var _ CandidateRepository = (*PostgresCandidateRepo)(nil)
