package security

import (
	"strings"
	"testing"
)

func TestText_StripsTags(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Backend Developer", "Backend Developer"},
		{"前後の空白を除去", "  Go  ", "Go"},
		{"scriptタグを除去", `<script>alert(1)</script>Acme`, "Acme"},
		{"太字タグを除去", "<b>Remoto</b>", "Remoto"},
		{"アンパサンドはエスケープせず保持", "R&D", "R&D"},
		{"タグのみは空文字", "<img src=x onerror=alert(1)>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestRichText_AllowedTags は許可タグが正しく通過することを検証する。
func TestRichText_AllowedTags(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{"pタグ", "<p>Requisitos</p>", []string{"<p>Requisitos</p>"}},
		{"リスト", "<ul><li>Go</li><li>SQL</li></ul>", []string{"<ul>", "<li>Go</li>", "</ul>"}},
		{"強調", "<strong>Importante</strong> <em>nota</em>", []string{"<strong>Importante</strong>", "<em>nota</em>"}},
		{"エディタのdiv", "<div>línea</div>", []string{"<div>línea</div>"}},
		{"リンクにtarget付与", `<a href="https://example.com">web</a>`, []string{`href="https://example.com"`, `target="_blank"`, "noopener", "noreferrer"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.RichText(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("RichText(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestRichText_ForbiddenContent は禁止タグとイベント属性が除去されることを検証する。
func TestRichText_ForbiddenContent(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
	}{
		{"scriptタグ", "<p>texto</p><script>alert('xss')</script>", []string{"<script", "alert"}},
		{"iframeタグ", `<iframe src="https://evil.com"></iframe><p>x</p>`, []string{"<iframe", "evil.com"}},
		{"onclick属性", `<p onclick="alert(1)">x</p>`, []string{"onclick", "alert"}},
		{"javascriptスキーム", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}},
		{"相対URL", `<a href="/admin">x</a>`, []string{`href="/admin"`}},
		{"画像", `<img src="https://example.com/a.png">`, []string{"<img"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.RichText(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("RichText(%q) = %q, should not contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

func TestRichText_Idempotent(t *testing.T) {
	s := NewSanitizer()
	input := `<p>Hola <a href="https://example.com">mundo</a></p><script>x</script>`
	once := s.RichText(input)
	if twice := s.RichText(once); twice != once {
		t.Errorf("2回目の結果が異なる: %q != %q", twice, once)
	}
}
