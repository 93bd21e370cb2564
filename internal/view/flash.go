package view

import (
	"crypto/sha256"
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
)

const flashCookieName = "devjobs_flash"

// フラッシュの種類
const (
	FlashError   = "error"
	FlashSuccess = "exito"
)

// Flashes は種類ごとの一度きりのメッセージ。
type Flashes map[string][]string

// FlashStore は次のレスポンスで一度だけ表示するメッセージを
// 署名・暗号化したCookieで運ぶ。サーバー側に状態を持たない。
type FlashStore struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewFlashStore はsecretから署名鍵と暗号鍵を導出してFlashStoreを生成する。
func NewFlashStore(secret string, secure bool) *FlashStore {
	hashKey := sha256.Sum256([]byte("devjobs-flash-hash:" + secret))
	blockKey := sha256.Sum256([]byte("devjobs-flash-block:" + secret))

	codec := securecookie.New(hashKey[:], blockKey[:])
	codec.MaxAge(600)

	return &FlashStore{codec: codec, secure: secure}
}

// Add はメッセージを追加する。同じリクエスト内で既に追加したものを含め、
// リクエストのCookieとレスポンスに設定済みの値の両方を引き継ぐ。
func (f *FlashStore) Add(w http.ResponseWriter, r *http.Request, kind string, messages ...string) {
	if len(messages) == 0 {
		return
	}

	flashes := f.pending(w)
	if flashes == nil {
		flashes = f.read(r)
	}
	flashes[kind] = append(flashes[kind], messages...)

	encoded, err := f.codec.Encode(flashCookieName, flashes)
	if err != nil {
		slog.Error("failed to encode flash", slog.String("error", err.Error()))
		return
	}
	f.write(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Pop は保存済みのメッセージを取り出し、Cookieを削除する。メッセージがなければnil。
func (f *FlashStore) Pop(w http.ResponseWriter, r *http.Request) Flashes {
	if _, err := r.Cookie(flashCookieName); err != nil {
		return nil
	}

	flashes := f.read(r)
	f.write(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if len(flashes) == 0 {
		return nil
	}
	return flashes
}

// read はリクエストのCookieを復号する。改ざんや期限切れは空として扱う。
func (f *FlashStore) read(r *http.Request) Flashes {
	flashes := Flashes{}
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return flashes
	}
	if err := f.codec.Decode(flashCookieName, cookie.Value, &flashes); err != nil {
		slog.Debug("discarding unreadable flash cookie", slog.String("error", err.Error()))
		return Flashes{}
	}
	return flashes
}

// pending はこのレスポンスで既に設定したフラッシュCookieを復号する。なければnil。
func (f *FlashStore) pending(w http.ResponseWriter) Flashes {
	for _, v := range w.Header().Values("Set-Cookie") {
		c, err := http.ParseSetCookie(v)
		if err != nil || c.Name != flashCookieName || c.Value == "" {
			continue
		}
		flashes := Flashes{}
		if err := f.codec.Decode(flashCookieName, c.Value, &flashes); err == nil {
			return flashes
		}
	}
	return nil
}

// write は同名のSet-Cookieを置き換えてCookieを設定する。
func (f *FlashStore) write(w http.ResponseWriter, cookie *http.Cookie) {
	kept := []string{}
	for _, v := range w.Header().Values("Set-Cookie") {
		if c, err := http.ParseSetCookie(v); err == nil && c.Name == flashCookieName {
			continue
		}
		kept = append(kept, v)
	}
	w.Header().Del("Set-Cookie")
	for _, v := range kept {
		w.Header().Add("Set-Cookie", v)
	}
	http.SetCookie(w, cookie)
}
