// Package contentreview checks official documents for typos, poor wording
// and format problems with the language model.
package contentreview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/extractor"
	"github.com/JustJay7/case-archive/internal/llm"
	"github.com/JustJay7/case-archive/pkg/logger"
)

const maxReviewChars = 12000

// EmptyMessage is returned when a document has no body text.
const EmptyMessage = "文档中未提取到正文内容，请确认文件内是否有文字。"

const jsonSystemPrompt = `你是一位熟悉政府机关与部队公文写作规范的审稿专家。你的任务是对给定的公文正文进行审查，找出以下三类问题并给出修改意见：

1. **错别字**：明显的错字、别字。
2. **用词不当**：词语搭配不当、歧义、口语化、不够严谨或正式的表述。
3. **公文规范**：不符合政府/部队公文写法的表述，例如：语气不够庄重、结构不规范、称谓或结尾用语不当、缺少必要要素等。

请仅根据原文内容进行审查，不要编造原文中不存在的句子。输出必须为合法的 JSON，且不要用 markdown 代码块包裹。
输出格式如下（不要包含其他说明文字）：
{
  "issues": [
    {
      "type": "错别字|用词不当|公文规范",
      "location": "简要位置说明，如：第2段 / 开头部分",
      "original": "有问题的原文片段（尽量简短）",
      "suggestion": "修改建议或推荐表述",
      "reason": "简要说明为何需要修改"
    }
  ],
  "summary": "对整篇文档的总体评价或审查说明（一两句话即可）"
}

若未发现任何问题，issues 可为空数组 []，summary 中说明“未发现明显问题”或类似表述。`

const markdownSystemPrompt = `你是一位熟悉政府机关与部队公文写作规范的审稿专家。请对给定的公文正文进行审查，找出以下三类问题并给出修改意见：

1. **错别字**：明显的错字、别字。
2. **用词不当**：词语搭配不当、歧义、口语化、不够严谨或正式的表述。
3. **公文规范**：不符合政府/部队公文写法的表述，例如：语气不够庄重、结构不规范、称谓或结尾用语不当等。

请**仅使用 Markdown 格式**输出，不要使用代码块包裹。结构要求如下：
- 先用二级标题写：## 总体评价，下面一段话概括整篇文档的审查结论。
- 再用二级标题写：## 问题与修改建议，下面用列表或小标题逐条列出，每条包含：**类型**（错别字/用词不当/公文规范）、**原文**、**建议修改**、**说明**。
若未发现任何问题，在总体评价中说明“未发现明显问题”即可，可省略“问题与修改建议”部分。

直接输出 Markdown 内容，不要输出 ` + "```markdown" + ` 等标记。`

// Model is the part of llm.Client the reviewer uses.
type Model interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	Stream(ctx context.Context, req llm.Request, onDelta func(string) error) error
}

type Issue struct {
	Type       string `json:"type"`
	Location   string `json:"location"`
	Original   string `json:"original"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
}

type Result struct {
	Issues          []Issue `json:"issues"`
	Summary         string  `json:"summary"`
	ExtractedLength int     `json:"extractedLength"`
}

// Event is one server-sent event payload of a streamed review.
type Event struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

type EmitFunc func(Event) error

type Service struct {
	model  Model
	logger *logger.Logger
}

func NewService(model Model, log *logger.Logger) *Service {
	return &Service{model: model, logger: log}
}

// IssuesSchema is the JSON schema of the structured review.
func IssuesSchema() map[string]any {
	str := map[string]any{"type": "string"}
	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []any{"issues"},
		"properties": map[string]any{
			"issues": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":       str,
						"location":   str,
						"original":   str,
						"suggestion": str,
						"reason":     str,
					},
				},
			},
			"summary": map[string]any{"type": []any{"string", "null"}},
		},
	}
}

// DocumentText validates an uploaded .docx and returns its paragraphs joined
// by newlines.
func DocumentText(filename string, data []byte) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".docx") {
		return "", apperror.BadRequest("请上传 .docx 格式的公文文件")
	}
	if len(data) == 0 {
		return "", apperror.BadRequest("文件为空，请上传有效的公文文件")
	}
	paragraphs, err := extractor.DocxParagraphs(data)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeBadRequest, http.StatusBadRequest,
			"无法解析该文档，请确认是有效的 .docx 公文文件")
	}
	return strings.Join(paragraphs, "\n"), nil
}

func userPrompt(text, format string) string {
	return "请对以下公文正文进行审查，" + format + "\n\n--- 公文正文 ---\n" +
		llm.Truncate(text, maxReviewChars) + "\n--- 正文结束 ---"
}

func modelError(err error) error {
	if errors.Is(err, llm.ErrNotConfigured) {
		return apperror.Wrap(err, apperror.CodeExternalService, http.StatusServiceUnavailable, err.Error())
	}
	if errors.Is(err, llm.ErrMalformed) || errors.Is(err, llm.ErrSchemaViolation) {
		return apperror.Wrap(err, apperror.CodeExternalService, http.StatusBadGateway, "审查结果解析失败，请重试")
	}
	return apperror.Wrap(err, apperror.CodeExternalService, http.StatusBadGateway, "content review failed")
}

// Review returns the structured issues found in text. Empty text succeeds
// without calling the model.
func (s *Service) Review(ctx context.Context, text string) (*Result, error) {
	length := len([]rune(text))
	if strings.TrimSpace(text) == "" {
		return &Result{Issues: []Issue{}, Summary: EmptyMessage, ExtractedLength: 0}, nil
	}

	rid := uuid.New().String()
	start := time.Now()
	s.logger.Info("llm.review.start", "req_id", rid, "text_len", length)

	content, err := s.model.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: jsonSystemPrompt},
			{Role: "user", Content: userPrompt(text, "找出错别字、用词不当、不符合政府/部队公文写法的地方，并按上述 JSON 格式输出修改意见。")},
		},
		Temperature: 0.3,
		MaxTokens:   4000,
		JSON:        true,
	})
	if err != nil {
		s.logger.Error("llm.review.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, modelError(err)
	}

	result, err := ParseResult(content)
	if err != nil {
		s.logger.Error("llm.review.schema_validation_failed", "req_id", rid, "error", err,
			"content", llm.Truncate(content, 200))
		return nil, modelError(err)
	}
	result.ExtractedLength = length

	s.logger.Info("llm.review.ok", "req_id", rid, "issues", len(result.Issues),
		"elapsed_ms", time.Since(start).Milliseconds())
	return result, nil
}

// ParseResult validates raw model output against IssuesSchema and decodes it.
func ParseResult(content string) (*Result, error) {
	raw := []byte(llm.StripCodeFence(content))
	if err := llm.ValidateJSONAgainstSchema(IssuesSchema(), raw); err != nil {
		return nil, err
	}

	var out struct {
		Issues  []Issue `json:"issues"`
		Summary *string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformed, err)
	}
	res := &Result{Issues: out.Issues}
	if res.Issues == nil {
		res.Issues = []Issue{}
	}
	if out.Summary != nil {
		res.Summary = *out.Summary
	}
	return res, nil
}

// ReviewStream streams markdown review notes. Empty text yields a single
// explanatory content event.
func (s *Service) ReviewStream(ctx context.Context, text string, emit EmitFunc) error {
	if strings.TrimSpace(text) == "" {
		if err := emit(Event{Content: EmptyMessage}); err != nil {
			return err
		}
		return emit(Event{Done: true})
	}

	var emitErr error
	err := s.model.Stream(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: markdownSystemPrompt},
			{Role: "user", Content: userPrompt(text, "按上述 Markdown 格式输出修改建议。")},
		},
		Temperature: 0.3,
		MaxTokens:   4000,
	}, func(delta string) error {
		if err := emit(Event{Content: delta}); err != nil {
			emitErr = err
			return err
		}
		return nil
	})
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		s.logger.Error("Content review stream failed", "error", err)
		_ = emit(Event{Error: err.Error()})
		return err
	}
	return emit(Event{Done: true})
}
