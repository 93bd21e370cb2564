// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/schema"
	"github.com/hitoshi/devjobs/internal/model"
	"github.com/hitoshi/devjobs/internal/view"
)

// formDecoder はフォーム値を許可リストの構造体にデコードする。
// 構造体にないキー（偽装された作成者など）は無視する。
var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.ZeroEmpty(true)
	return d
}

// decodeForm はURLエンコードされたフォームを解析してdstにデコードする。
func decodeForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	return formDecoder.Decode(dst, r.PostForm)
}

// decodeValues は解析済みの値をdstにデコードする。
func decodeValues(values url.Values, dst any) error {
	return formDecoder.Decode(dst, values)
}

// responder はページ描画とエラー応答の共通処理。
type responder struct {
	view *view.Renderer
}

// flash はメッセージを次のページ表示用に積む。
func (rs responder) flash(w http.ResponseWriter, r *http.Request, kind string, messages ...string) {
	rs.view.Flashes().Add(w, r, kind, messages...)
}

// redirectBack はRefererが同一サイト内ならそこへ、そうでなければfallbackへリダイレクトする。
func (rs responder) redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	target := fallback
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" && (ref.Host == "" || ref.Host == r.Host) {
		target = ref.RequestURI()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// fail はドメインエラーを種類ごとの画面に変換する。
// バリデーションエラーはフォームを再描画する必要があるため呼び出し側で処理すること。
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *model.AppError
	if !errors.As(err, &appErr) {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		rs.view.RenderError(w, r, http.StatusInternalServerError, "Hubo un error, intenta de nuevo más tarde")
		return
	}

	switch appErr.Kind {
	case model.KindNotFound:
		rs.view.RenderError(w, r, http.StatusNotFound, appErr.Message)
	case model.KindForbidden:
		rs.view.RenderError(w, r, http.StatusForbidden, appErr.Message)
	case model.KindUnauthorized:
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
	default:
		rs.flash(w, r, view.FlashError, appErr.AllMessages()...)
		rs.redirectBack(w, r, "/")
	}
}

// validationMessages はバリデーションエラーのメッセージを返す。該当しなければnil。
func validationMessages(err error) []string {
	var appErr *model.AppError
	if errors.As(err, &appErr) && appErr.Kind == model.KindValidation {
		return appErr.AllMessages()
	}
	return nil
}

// plainText はテキストのレスポンスを書き込む。
func plainText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
