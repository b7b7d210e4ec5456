package handlers

import (
	"bytes"
	"html/template"
	"log/slog"

	"github.com/MegaGrindStone/codex-prime-ui/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
}

// renderContent renders assistant text as Markdown. User text is shown verbatim. Raw HTML in the
// Markdown source is not rendered.
func (m Main) renderContent(msg models.Message) template.HTML {
	if msg.Sender == models.SenderUser {
		return template.HTML(template.HTMLEscapeString(msg.Text))
	}

	var buf bytes.Buffer
	if err := m.markdown.Convert([]byte(msg.Text), &buf); err != nil {
		m.logger.Warn("Failed to render markdown",
			slog.String("id", msg.ID),
			slog.String(errLoggerKey, err.Error()))
		return template.HTML(template.HTMLEscapeString(msg.Text))
	}
	return template.HTML(buf.String())
}
