// Package vacancy は求人の作成、編集、削除、検索と応募受付のドメインロジックを提供する。
package vacancy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/hitoshi/devjobs/internal/model"
	"github.com/hitoshi/devjobs/internal/repository"
	"github.com/hitoshi/devjobs/internal/security"
	"github.com/hitoshi/devjobs/internal/upload"
)

// slugAttempts はslug衝突時に再生成する最大回数。
const slugAttempts = 5

// fieldMessages はバリデーション失敗時にフィールドごとに表示するメッセージ。
var fieldMessages = map[string]string{
	"Title":    "Agrega un titulo a la vacante",
	"Company":  "Agrega una Empresa",
	"Location": "Agrega una Ubicación",
	"Contract": "Selecciona el tipo de contrato",
	"Skills":   "Agrega al menos una habilidad",
}

// Service は求人のサービス層。
type Service struct {
	vacancies  repository.VacancyRepository
	candidates repository.CandidateRepository
	sanitizer  security.Sanitizer
	store      upload.Store
	validate   *validator.Validate
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	vacancies repository.VacancyRepository,
	candidates repository.CandidateRepository,
	sanitizer security.Sanitizer,
	store upload.Store,
) *Service {
	return &Service{
		vacancies:  vacancies,
		candidates: candidates,
		sanitizer:  sanitizer,
		store:      store,
		validate:   validator.New(),
		now:        time.Now,
	}
}

// ParseSkills はカンマ区切りのスキルを分割し、前後の空白と空要素を除いて順序どおり返す。
func ParseSkills(raw string) []string {
	skills := []string{}
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	return skills
}

// Validate は入力をサニタイズしてから必須項目を検証し、全てのメッセージをフィールド順に返す。
// inputはサニタイズ後の値に書き換えられる。
func (s *Service) Validate(input *model.VacancyInput) []string {
	input.Title = s.sanitizer.Text(input.Title)
	input.Company = s.sanitizer.Text(input.Company)
	input.Location = s.sanitizer.Text(input.Location)
	input.Contract = s.sanitizer.Text(input.Contract)
	input.Salary = s.sanitizer.Text(input.Salary)
	input.Description = s.sanitizer.RichText(input.Description)
	input.Skills = strings.Join(ParseSkills(s.sanitizer.Text(input.Skills)), ",")

	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if msg, ok := fieldMessages[fe.StructField()]; ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

// Create は求人を作成する。作成者はセッションのユーザーのみから決まる。
func (s *Service) Create(ctx context.Context, authorID uuid.UUID, input model.VacancyInput) (*model.Vacancy, error) {
	if msgs := s.Validate(&input); len(msgs) > 0 {
		return nil, model.NewValidationError(msgs)
	}

	now := s.now()
	v := fromInput(input)
	v.ID = uuid.New()
	v.AuthorID = authorID
	v.CreatedAt = now
	v.UpdatedAt = now

	for attempt := 0; attempt < slugAttempts; attempt++ {
		v.Slug = makeSlug(input.Title)

		exists, err := s.vacancies.SlugExists(ctx, v.Slug)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		err = s.vacancies.Create(ctx, v)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}

		slog.InfoContext(ctx, "vacancy created",
			slog.String("vacancy_id", v.ID.String()),
			slog.String("slug", v.Slug),
			slog.String("author_id", authorID.String()),
		)
		return v, nil
	}

	return nil, fmt.Errorf("failed to allocate unique slug for %q", input.Title)
}

// GetBySlug は作成者を展開した求人を返す。
func (s *Service) GetBySlug(ctx context.Context, slugValue string) (*model.Vacancy, error) {
	v, err := s.vacancies.FindBySlug(ctx, slugValue)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, model.NewVacancyNotFoundError(slugValue)
	}
	return v, nil
}

// GetForEdit は編集フォーム用に求人を返す。作成者以外は拒否する。
func (s *Service) GetForEdit(ctx context.Context, userID uuid.UUID, slugValue string) (*model.Vacancy, error) {
	v, err := s.GetBySlug(ctx, slugValue)
	if err != nil {
		return nil, err
	}
	if !model.IsAuthor(v, userID) {
		return nil, model.NewNotAuthorError()
	}
	return v, nil
}

// Edit は作成者本人の求人の編集可能な項目を更新する。作成者とslugは変わらない。
func (s *Service) Edit(ctx context.Context, userID uuid.UUID, slugValue string, input model.VacancyInput) (*model.Vacancy, error) {
	if _, err := s.GetForEdit(ctx, userID, slugValue); err != nil {
		return nil, err
	}

	if msgs := s.Validate(&input); len(msgs) > 0 {
		return nil, model.NewValidationError(msgs)
	}

	changes := fromInput(input)
	changes.UpdatedAt = s.now()

	updated, err := s.vacancies.UpdateBySlug(ctx, slugValue, changes)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// 編集中に削除された
		return nil, model.NewVacancyNotFoundError(slugValue)
	}

	slog.InfoContext(ctx, "vacancy updated",
		slog.String("vacancy_id", updated.ID.String()),
		slog.String("user_id", userID.String()),
	)
	return updated, nil
}

// Delete は作成者本人の求人を削除する。作成者以外の場合はストアに触れずに拒否する。
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	v, err := s.vacancies.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if v == nil {
		return model.NewVacancyNotFoundError(id.String())
	}
	if !model.IsAuthor(v, userID) {
		slog.WarnContext(ctx, "vacancy delete refused",
			slog.String("vacancy_id", id.String()),
			slog.String("user_id", userID.String()),
		)
		return model.NewNotAuthorError()
	}

	// 応募者の履歴書はCASCADEで行が消えるため、先にキーを集めておく
	candidates, err := s.candidates.ListByVacancy(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.vacancies.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return model.NewVacancyNotFoundError(id.String())
	}

	for _, c := range candidates {
		if err := s.store.Delete(ctx, resumeKey(c.Resume)); err != nil {
			slog.WarnContext(ctx, "failed to delete resume",
				slog.String("resume", c.Resume),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.InfoContext(ctx, "vacancy deleted",
		slog.String("vacancy_id", id.String()),
		slog.Int("candidates", len(candidates)),
	)
	return nil
}

// ListAll は全求人を返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Vacancy, error) {
	return s.vacancies.ListAll(ctx)
}

// ListByAuthor は管理パネル用に作成者の求人を応募者数付きで返す。
func (s *Service) ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]*model.Vacancy, error) {
	return s.vacancies.ListByAuthor(ctx, authorID)
}

// Search は全文検索の結果と、件数に応じたページタイトルを返す。
// 空のクエリは全件を返す。
func (s *Service) Search(ctx context.Context, query string) (string, []*model.Vacancy, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		all, err := s.vacancies.ListAll(ctx)
		if err != nil {
			return "", nil, err
		}
		return "devJobs", all, nil
	}

	results, err := s.vacancies.Search(ctx, query)
	if err != nil {
		return "", nil, err
	}
	return SearchTitle(query, len(results)), results, nil
}

// SearchTitle は検索結果件数に応じたタイトルを返す。
func SearchTitle(query string, count int) string {
	switch count {
	case 0:
		return fmt.Sprintf("Sin resultados para la búsqueda: %s", query)
	case 1:
		return fmt.Sprintf("1 resultado para la búsqueda: %s", query)
	default:
		return fmt.Sprintf("%d resultados para la búsqueda: %s", count, query)
	}
}

// ApplyInput は応募フォームのファイル以外の項目。
type ApplyInput struct {
	Name  string `schema:"nombre"`
	Email string `schema:"email"`
}

// Apply は保存済みの履歴書で応募を追加する。
// 求人がない場合や入力が不正な場合は保存済みファイルを削除する。
func (s *Service) Apply(ctx context.Context, slugValue string, input ApplyInput, stored *upload.Stored) (*model.Vacancy, error) {
	v, err := s.vacancies.FindBySlug(ctx, slugValue)
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}
	if v == nil {
		s.discard(ctx, stored)
		return nil, model.NewVacancyNotFoundError(slugValue)
	}

	name := s.sanitizer.Text(input.Name)
	email := strings.TrimSpace(input.Email)
	var msgs []string
	if name == "" {
		msgs = append(msgs, "Agrega tu nombre")
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		msgs = append(msgs, "Agrega un email válido")
	}
	if len(msgs) > 0 {
		s.discard(ctx, stored)
		return v, model.NewValidationError(msgs)
	}

	candidate := &model.Candidate{
		ID:        uuid.New(),
		VacancyID: v.ID,
		Name:      name,
		Email:     email,
		Resume:    stored.Name,
		CreatedAt: s.now(),
	}
	if err := s.candidates.Append(ctx, candidate); err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	slog.InfoContext(ctx, "candidate applied",
		slog.String("vacancy_id", v.ID.String()),
		slog.String("resume", stored.Name),
	)
	return v, nil
}

// Candidates は作成者本人に応募者一覧付きの求人を返す。
// 求人がない場合と作成者でない場合は区別せず見つからないエラーを返す。
func (s *Service) Candidates(ctx context.Context, userID, vacancyID uuid.UUID) (*model.Vacancy, error) {
	v, err := s.vacancies.FindByID(ctx, vacancyID)
	if err != nil {
		return nil, err
	}
	if v == nil || !model.IsAuthor(v, userID) {
		return nil, model.NewCandidatesNotFoundError()
	}

	list, err := s.candidates.ListByVacancy(ctx, vacancyID)
	if err != nil {
		return nil, err
	}
	v.Candidates = list
	return v, nil
}

// Resume は作成者本人に、その求人の応募者の履歴書を返す。呼び出し側がCloseすること。
func (s *Service) Resume(ctx context.Context, userID, vacancyID uuid.UUID, file string) (io.ReadCloser, error) {
	if _, err := s.Candidates(ctx, userID, vacancyID); err != nil {
		return nil, err
	}

	c, err := s.candidates.FindByResume(ctx, vacancyID, file)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, model.NewCandidatesNotFoundError()
	}

	rc, err := s.store.Open(ctx, resumeKey(c.Resume))
	if errors.Is(err, upload.ErrNotExist) {
		return nil, model.NewCandidatesNotFoundError()
	}
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *Service) discard(ctx context.Context, stored *upload.Stored) {
	if stored == nil {
		return
	}
	if err := s.store.Delete(ctx, stored.Key); err != nil {
		slog.WarnContext(ctx, "failed to discard orphan upload",
			slog.String("key", stored.Key),
			slog.String("error", err.Error()),
		)
	}
}

// resumeKey は応募に記録したファイル名から保存先のキーを返す。
func resumeKey(name string) string {
	return upload.CVPolicy(0).Prefix + "/" + name
}

// fromInput は検証済みの入力から編集可能な項目だけを持つ求人を作る。
func fromInput(input model.VacancyInput) *model.Vacancy {
	v := &model.Vacancy{
		Title:       input.Title,
		Company:     input.Company,
		Location:    input.Location,
		Contract:    input.Contract,
		Description: input.Description,
		Skills:      ParseSkills(input.Skills),
	}
	if input.Salary != "" {
		salary := input.Salary
		v.Salary = &salary
	}
	return v
}

// makeSlug はタイトルからURL用のslugを作り、短いランダムな接尾辞を付ける。
func makeSlug(title string) string {
	base := slug.Make(title)
	if base == "" {
		base = "vacante"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return base + "-" + suffix
}
