package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hitoshi/devjobs/internal/model"
)

// formOverhead はファイル以外のフォーム項目とmultipartヘッダーに許容するバイト数。
const formOverhead = 1 << 20

// ErrNoFile は指定フィールドにファイルが送られていないことを表す。
var ErrNoFile = errors.New("no file uploaded")

// 拒否理由。メトリクスのラベルにも使う。
const (
	ReasonSize  = "size"
	ReasonType  = "type"
	ReasonCount = "count"
)

// Policy はフィールドごとの受け付け条件。
type Policy struct {
	Field        string
	MaxBytes     int64
	AllowedTypes []string
	Prefix       string
}

// CVPolicy は応募フォームの履歴書（PDFのみ）。
func CVPolicy(maxBytes int64) Policy {
	return Policy{
		Field:        "cv",
		MaxBytes:     maxBytes,
		AllowedTypes: []string{"application/pdf"},
		Prefix:       "cv",
	}
}

// ProfileImagePolicy はプロフィール画像（JPEG/PNG）。
func ProfileImagePolicy(maxBytes int64) Policy {
	return Policy{
		Field:        "imagen",
		MaxBytes:     maxBytes,
		AllowedTypes: []string{"image/jpeg", "image/png"},
		Prefix:       "perfiles",
	}
}

// Stored は保存に成功したファイル。Name はフォームや一覧に記録するファイル名。
type Stored struct {
	Name        string
	Key         string
	Size        int64
	ContentType string
}

// RejectedError はサイズや形式の条件を満たさず受け付けなかったことを表す。
// Unwrap でmodel.AppErrorを返すため model.IsKind(err, model.KindUploadRejected) が成立する。
type RejectedError struct {
	Reason  string
	Message string
	code    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upload rejected (%s): %s", e.Reason, e.Message)
}

func (e *RejectedError) Unwrap() error {
	return model.NewUploadRejectedError(e.code, e.Message)
}

func tooLarge(maxBytes int64) *RejectedError {
	return &RejectedError{
		Reason:  ReasonSize,
		Message: fmt.Sprintf("El archivo es muy grande: Máximo %dkb", maxBytes/1000),
		code:    model.ErrCodeFileTooLarge,
	}
}

func invalidType() *RejectedError {
	return &RejectedError{Reason: ReasonType, Message: "Formato No Válido", code: model.ErrCodeInvalidFileType}
}

// Intake はmultipartリクエストからファイルを1つ取り出し、検証して保存する。
type Intake struct {
	store Store
}

// NewIntake はIntakeを生成する。
func NewIntake(store Store) *Intake {
	return &Intake{store: store}
}

// Store は保存先を返す。
func (in *Intake) Store() Store {
	return in.store
}

// Accept はサイズ、宣言されたMIME、保存の順に処理する。
// ファイル以外のフォーム項目は r.MultipartForm / r.PostForm から読める状態になる。
func (in *Intake) Accept(ctx context.Context, r *http.Request, policy Policy) (*Stored, error) {
	if r.MultipartForm == nil {
		r.Body = http.MaxBytesReader(nil, r.Body, policy.MaxBytes+formOverhead)
		if err := r.ParseMultipartForm(policy.MaxBytes + formOverhead); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, tooLarge(policy.MaxBytes)
			}
			if errors.Is(err, http.ErrNotMultipart) {
				return nil, ErrNoFile
			}
			return nil, fmt.Errorf("failed to parse multipart form: %w", err)
		}
	}

	files := r.MultipartForm.File[policy.Field]
	switch {
	case len(files) == 0:
		return nil, ErrNoFile
	case len(files) > 1:
		return nil, &RejectedError{Reason: ReasonCount, Message: "Sube un solo archivo", code: model.ErrCodeTooManyFiles}
	}
	fh := files[0]

	// 1. サイズ
	if fh.Size > policy.MaxBytes {
		return nil, tooLarge(policy.MaxBytes)
	}

	// 2. 宣言されたMIMEが許可リストにあること
	declared, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if err != nil || !slices.Contains(policy.AllowedTypes, strings.ToLower(declared)) {
		return nil, invalidType()
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	// 3. 保存
	name := uuid.NewString() + extension(declared)
	key := name
	if policy.Prefix != "" {
		key = policy.Prefix + "/" + name
	}
	if err := in.store.Put(ctx, key, f, fh.Size, declared); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	slog.InfoContext(ctx, "upload stored",
		slog.String("key", key),
		slog.Int64("size", fh.Size),
		slog.String("content_type", declared),
	)

	return &Stored{Name: name, Key: key, Size: fh.Size, ContentType: declared}, nil
}

// extension はMIMEタイプからファイル拡張子を返す。
func extension(contentType string) string {
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}
