package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/devjobs/internal/model"
	"github.com/lib/pq"
)

const vacancyColumns = `v.id, v.slug, v.title, v.company, v.location, v.contract, v.salary,
	v.description, v.skills, v.author_id, v.created_at, v.updated_at`

// PostgresVacancyRepo はPostgreSQLを使用した求人リポジトリ。
type PostgresVacancyRepo struct {
	db *sql.DB
}

// NewPostgresVacancyRepo はPostgresVacancyRepoを生成する。
func NewPostgresVacancyRepo(db *sql.DB) *PostgresVacancyRepo {
	return &PostgresVacancyRepo{db: db}
}

// FindBySlug はslugで求人を取得し、作成者の公開情報を展開する。
func (r *PostgresVacancyRepo) FindBySlug(ctx context.Context, slug string) (*model.Vacancy, error) {
	v := &model.Vacancy{}
	var salary sql.NullString
	var authorID uuid.NullUUID
	var authorEmail, authorName, authorImage sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT `+vacancyColumns+`, u.id, u.email, u.name, u.image
		 FROM vacancies v
		 LEFT JOIN users u ON u.id = v.author_id
		 WHERE v.slug = $1`,
		slug,
	).Scan(
		&v.ID, &v.Slug, &v.Title, &v.Company, &v.Location, &v.Contract, &salary,
		&v.Description, pq.Array(&v.Skills), &v.AuthorID, &v.CreatedAt, &v.UpdatedAt,
		&authorID, &authorEmail, &authorName, &authorImage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find vacancy by slug: %w", err)
	}

	v.Salary = stringPtr(salary)
	if authorID.Valid {
		v.Author = &model.User{
			ID:    authorID.UUID,
			Email: authorEmail.String,
			Name:  authorName.String,
			Image: authorImage.String,
		}
	}
	return v, nil
}

// FindByID は内部IDで求人を取得する。
func (r *PostgresVacancyRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Vacancy, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+vacancyColumns+` FROM vacancies v WHERE v.id = $1`,
		id,
	)
	v, err := scanVacancy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find vacancy by ID: %w", err)
	}
	return v, nil
}

// ListAll は全求人を新しい順に返す。
func (r *PostgresVacancyRepo) ListAll(ctx context.Context) ([]*model.Vacancy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+vacancyColumns+` FROM vacancies v ORDER BY v.created_at DESC, v.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list vacancies: %w", err)
	}
	defer rows.Close()

	return collectVacancies(rows)
}

// ListByAuthor は作成者の求人を応募者数付きで返す。
func (r *PostgresVacancyRepo) ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]*model.Vacancy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+vacancyColumns+`,
		    (SELECT count(*) FROM candidates c WHERE c.vacancy_id = v.id)
		 FROM vacancies v
		 WHERE v.author_id = $1
		 ORDER BY v.created_at DESC, v.id`,
		authorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list vacancies by author: %w", err)
	}
	defer rows.Close()

	var vacancies []*model.Vacancy
	for rows.Next() {
		v := &model.Vacancy{}
		var salary sql.NullString
		if err := rows.Scan(
			&v.ID, &v.Slug, &v.Title, &v.Company, &v.Location, &v.Contract, &salary,
			&v.Description, pq.Array(&v.Skills), &v.AuthorID, &v.CreatedAt, &v.UpdatedAt,
			&v.CandidateCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vacancy: %w", err)
		}
		v.Salary = stringPtr(salary)
		vacancies = append(vacancies, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return vacancies, nil
}

// Search はスペイン語の全文検索で一致する求人を関連度順に返す。
func (r *PostgresVacancyRepo) Search(ctx context.Context, query string) ([]*model.Vacancy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+vacancyColumns+`
		 FROM vacancies v, websearch_to_tsquery('spanish', $1) q
		 WHERE v.search_vector @@ q
		 ORDER BY ts_rank(v.search_vector, q) DESC, v.created_at DESC`,
		query,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search vacancies: %w", err)
	}
	defer rows.Close()

	return collectVacancies(rows)
}

// SlugExists はslugが使用済みかを返す。
func (r *PostgresVacancyRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vacancies WHERE slug = $1)`,
		slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// Create は求人を作成する。
func (r *PostgresVacancyRepo) Create(ctx context.Context, v *model.Vacancy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vacancies (id, slug, title, company, location, contract, salary,
		    description, skills, author_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.ID, v.Slug, v.Title, v.Company, v.Location, v.Contract, nullableString(v.Salary),
		v.Description, pq.Array(v.Skills), v.AuthorID, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if dup := asDuplicate(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to insert vacancy: %w", err)
	}
	return nil
}

// UpdateBySlug は編集可能なフィールドを更新し、更新後の行を返す。
// slug と author_id は書き換えない。
func (r *PostgresVacancyRepo) UpdateBySlug(ctx context.Context, slug string, v *model.Vacancy) (*model.Vacancy, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE vacancies v SET
		    title = $2, company = $3, location = $4, contract = $5, salary = $6,
		    description = $7, skills = $8, updated_at = $9
		 WHERE v.slug = $1
		 RETURNING `+vacancyColumns,
		slug, v.Title, v.Company, v.Location, v.Contract, nullableString(v.Salary),
		v.Description, pq.Array(v.Skills), v.UpdatedAt,
	)
	updated, err := scanVacancy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update vacancy: %w", err)
	}
	return updated, nil
}

// Delete は指定IDの求人を削除する。
func (r *PostgresVacancyRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM vacancies WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete vacancy: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// scanVacancy はvacancyColumnsの順で1行を読み取る。
func scanVacancy(row rowScanner) (*model.Vacancy, error) {
	v := &model.Vacancy{}
	var salary sql.NullString
	if err := row.Scan(
		&v.ID, &v.Slug, &v.Title, &v.Company, &v.Location, &v.Contract, &salary,
		&v.Description, pq.Array(&v.Skills), &v.AuthorID, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	v.Salary = stringPtr(salary)
	return v, nil
}

func collectVacancies(rows *sql.Rows) ([]*model.Vacancy, error) {
	var vacancies []*model.Vacancy
	for rows.Next() {
		v, err := scanVacancy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vacancy: %w", err)
		}
		vacancies = append(vacancies, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return vacancies, nil
}

// compile-time interface check
var _ VacancyRepository = (*PostgresVacancyRepo)(nil)
