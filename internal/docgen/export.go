package docgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/render"
	"github.com/JustJay7/case-archive/internal/storage"
)

// Export formats.
const (
	FormatPDF      = "pdf"
	FormatHTML     = "html"
	FormatMarkdown = "md"
)

type Export struct {
	Data        []byte
	ContentType string
	Filename    string
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

const pageStyle = `body{font-family:"FangSong","SimSun",serif;font-size:16pt;line-height:1.8;margin:2.5cm 2cm;color:#000}
h1{text-align:center;font-family:"SimHei",sans-serif;font-size:22pt}
h2,h3{font-family:"SimHei",sans-serif}
table{border-collapse:collapse;width:100%}
td,th{border:1px solid #000;padding:4px 8px}`

// RenderHTML converts markdown to a standalone HTML page.
func RenderHTML(title string, md []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert(md, &body); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "<!DOCTYPE html>\n<html lang=\"zh-CN\">\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n<style>%s</style>\n</head>\n<body>\n",
		html.EscapeString(title), pageStyle)
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

// Export returns a completed document as PDF, HTML or raw markdown. PDF falls
// back to HTML when rendering is disabled.
func (s *Service) Export(ctx context.Context, taskID, format string) (*Export, error) {
	if format == "" {
		format = FormatPDF
	}
	if format != FormatPDF && format != FormatHTML && format != FormatMarkdown {
		return nil, apperror.InvalidParameter("format must be pdf, html or md")
	}

	t, err := s.task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != database.DocCompleted || t.FilePath == "" {
		return nil, apperror.New(apperror.CodeInvalidState, http.StatusBadRequest,
			fmt.Sprintf("task is %s and has no document to export", t.Status))
	}

	md, err := storage.ReadAll(ctx, s.store, t.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperror.NotFound("generated document is missing")
		}
		return nil, apperror.Internal(err)
	}

	name := t.DocType + "-" + t.TaskID
	if format == FormatMarkdown {
		return &Export{Data: md, ContentType: "text/markdown; charset=utf-8", Filename: name + ".md"}, nil
	}

	page, err := RenderHTML(t.DocType, md)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	htmlExport := &Export{Data: page, ContentType: "text/html; charset=utf-8", Filename: name + ".html"}
	if format == FormatHTML {
		return htmlExport, nil
	}

	pdf, err := s.renderer.PDF(ctx, string(page))
	if errors.Is(err, render.ErrDisabled) {
		return htmlExport, nil
	}
	if err != nil {
		s.logger.Error("PDF rendering failed", "task_id", taskID, "error", err)
		return nil, apperror.Internal(err)
	}
	s.logger.Info("Document exported", "task_id", taskID, "format", format, "bytes", len(pdf))
	return &Export{Data: pdf, ContentType: "application/pdf", Filename: name + ".pdf"}, nil
}
