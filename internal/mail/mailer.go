// Package mail はパスワード再設定メールの組み立てと送信を提供する。
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Message は送信するメール1通分の内容。
// Template は templates/ 以下のファイル名（拡張子なし）。
type Message struct {
	To       string
	ToName   string
	Subject  string
	ResetURL string
	Template string
}

// Mailer はメール送信のインターフェース。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Render はメッセージをHTML本文とプレーンテキスト本文に展開する。
func Render(msg Message) (htmlBody, textBody string, err error) {
	name := msg.Template
	if name == "" {
		name = "reset"
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".html", msg); err != nil {
		return "", "", fmt.Errorf("failed to render mail template %q: %w", name, err)
	}

	htmlBody = buf.String()
	textBody, err = PlainText(htmlBody)
	if err != nil {
		return "", "", err
	}
	return htmlBody, textBody, nil
}

// PlainText はHTMLからテキスト部分を抜き出す。
// リンクは "テキスト (URL)" の形で残し、ブロック要素ごとに改行する。
func PlainText(htmlBody string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return "", fmt.Errorf("failed to parse mail html: %w", err)
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteString(" ")
				}
				sb.WriteString(text)
			}
		case html.ElementNode:
			switch n.Data {
			case "style", "script", "head", "title":
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if href := attr(n, "href"); href != "" {
					fmt.Fprintf(&sb, " (%s)", href)
				}
			case "p", "div", "h1", "h2", "h3", "li", "br", "tr":
				sb.WriteString("\n")
			}
		}
	}
	walk(doc)

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// LogMailer はSMTPが未設定の開発環境向けに、送信する代わりにログへ出力する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send はメール内容をログに出力する。
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	_, text, err := Render(msg)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "mail not sent (SMTP disabled)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("reset_url", msg.ResetURL),
		slog.Int("body_length", len(text)),
	)
	return nil
}

var _ Mailer = (*LogMailer)(nil)
