package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/devjobs/internal/model"
	"github.com/stretchr/testify/require"
)

type filePart struct {
	field       string
	filename    string
	contentType string
	content     []byte
}

func newMultipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/vacantes/x", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// pdfBytes は先頭がPDFシグネチャのn バイトのデータを返す。
func pdfBytes(n int) []byte {
	b := bytes.Repeat([]byte("a"), n)
	copy(b, "%PDF-1.4\n")
	return b
}

func newTestIntake(t *testing.T) (*Intake, *LocalStore) {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewIntake(store), store
}

func TestAccept_TooLargePDF(t *testing.T) {
	intake, _ := newTestIntake(t)
	req := newMultipartRequest(t, nil, filePart{"cv", "cv.pdf", "application/pdf", pdfBytes(150000)})

	_, err := intake.Accept(context.Background(), req, CVPolicy(100000))

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, ReasonSize, rejected.Reason)
	require.Equal(t, "El archivo es muy grande: Máximo 100kb", rejected.Message)
	require.True(t, model.IsKind(err, model.KindUploadRejected))
}

func TestAccept_WrongType(t *testing.T) {
	intake, _ := newTestIntake(t)
	req := newMultipartRequest(t, nil, filePart{"cv", "cv.txt", "text/plain", bytes.Repeat([]byte("x"), 50000)})

	_, err := intake.Accept(context.Background(), req, CVPolicy(100000))

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, ReasonType, rejected.Reason)
	require.Equal(t, "Formato No Válido", rejected.Message)
}

// 判定は宣言されたMIMEのみで行い、中身は検査しない
func TestAccept_DeclaredPDFAcceptedRegardlessOfContent(t *testing.T) {
	intake, store := newTestIntake(t)
	content := bytes.Repeat([]byte("x"), 50000)
	req := newMultipartRequest(t, nil, filePart{"cv", "cv.pdf", "application/pdf", content})

	stored, err := intake.Accept(context.Background(), req, CVPolicy(100000))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(stored.Name, ".pdf"))

	rc, err := store.Open(context.Background(), stored.Key)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Len(t, got, 50000)
}

func TestAccept_ValidPDF(t *testing.T) {
	intake, store := newTestIntake(t)
	content := pdfBytes(50000)
	req := newMultipartRequest(t, map[string]string{"nombre": "Ana"}, filePart{"cv", "cv.pdf", "application/pdf", content})

	stored, err := intake.Accept(context.Background(), req, CVPolicy(100000))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(stored.Name, ".pdf"))
	require.Equal(t, "cv/"+stored.Name, stored.Key)
	require.Equal(t, int64(50000), stored.Size)

	// 他のフォーム項目も読める
	require.Equal(t, "Ana", req.FormValue("nombre"))

	rc, err := store.Open(context.Background(), stored.Key)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestAccept_ConcurrentUploadsGetDistinctNames(t *testing.T) {
	intake, store := newTestIntake(t)

	const n = 2
	names := make([]string, n)
	errs := make([]error, n)
	reqs := make([]*http.Request, n)
	for i := range reqs {
		reqs[i] = newMultipartRequest(t, nil, filePart{"cv", "cv.pdf", "application/pdf", pdfBytes(50000)})
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, err := intake.Accept(context.Background(), reqs[i], CVPolicy(100000))
			errs[i] = err
			if stored != nil {
				names[i] = stored.Key
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.NotEqual(t, names[0], names[1])
	for _, key := range names {
		rc, err := store.Open(context.Background(), key)
		require.NoError(t, err)
		rc.Close()
	}
}

func TestAccept_MissingFile(t *testing.T) {
	intake, _ := newTestIntake(t)
	req := newMultipartRequest(t, map[string]string{"nombre": "Ana"})

	_, err := intake.Accept(context.Background(), req, CVPolicy(100000))
	require.ErrorIs(t, err, ErrNoFile)
}

func TestAccept_NotMultipart(t *testing.T) {
	intake, _ := newTestIntake(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("nombre=Ana"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := intake.Accept(context.Background(), req, CVPolicy(100000))
	require.ErrorIs(t, err, ErrNoFile)
}

func TestAccept_TwoFilesRejected(t *testing.T) {
	intake, _ := newTestIntake(t)
	req := newMultipartRequest(t, nil,
		filePart{"cv", "a.pdf", "application/pdf", pdfBytes(1000)},
		filePart{"cv", "b.pdf", "application/pdf", pdfBytes(1000)},
	)

	_, err := intake.Accept(context.Background(), req, CVPolicy(100000))

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, ReasonCount, rejected.Reason)
}

func TestAccept_ProfileImagePNG(t *testing.T) {
	intake, _ := newTestIntake(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 100)...)
	req := newMultipartRequest(t, nil, filePart{"imagen", "yo.png", "image/png", png})

	stored, err := intake.Accept(context.Background(), req, ProfileImagePolicy(100000))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stored.Key, "perfiles/"))
	require.True(t, strings.HasSuffix(stored.Name, ".png"))
}
