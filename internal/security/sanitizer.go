// Package security はフォーム入力のサニタイズを提供する。
//
// 短いテキスト項目はタグを全て取り除いたプレーンテキストとして保存し、
// 表示時にテンプレートがエスケープする。求人の説明文だけは
// エディタが出力する限られたタグを残す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はフォーム入力のサニタイズ機能のインターフェース。
type Sanitizer interface {
	// Text はHTMLタグを全て除去し、前後の空白を取り除いたプレーンテキストを返す。
	Text(raw string) string
	// RichText は説明文用の許可タグ以外を除去したHTMLを返す。
	RichText(raw string) string
}

// formSanitizer はSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type formSanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewSanitizer はSanitizerの新しいインスタンスを生成する。
// 説明文の許可タグ: p, br, div, h1, ul, ol, li, blockquote, pre, code, strong, em, del, a
// aタグは http/https の絶対URLのみ許可し、target="_blank" と rel="noopener noreferrer" を付与する。
func NewSanitizer() *formSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "div", "h1", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &formSanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   p,
	}
}

// Text はタグを除去したうえでエンティティを戻し、プレーンテキストとして返す。
func (s *formSanitizer) Text(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}

// RichText は許可リスト外のタグと属性を除去する。
func (s *formSanitizer) RichText(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

var _ Sanitizer = (*formSanitizer)(nil)
