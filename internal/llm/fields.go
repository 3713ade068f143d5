package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxExtractChars bounds the document text sent for field extraction.
const maxExtractChars = 12000

// PersonFields describes the person a case file is about.
type PersonFields struct {
	Gender         string `json:"gender,omitempty"`
	Ethnicity      string `json:"ethnicity,omitempty"`
	Birthplace     string `json:"birthplace,omitempty"`
	EnlistmentTime string `json:"enlistmentTime,omitempty"`
	Position       string `json:"position,omitempty"`
	Category       string `json:"category,omitempty"`
}

type Classification struct {
	Level1 string `json:"level1,omitempty"`
	Level2 string `json:"level2,omitempty"`
	Level3 string `json:"level3,omitempty"`
}

// CaseFields is the structured result of field extraction. Every field is
// optional; a missing field is the empty value.
type CaseFields struct {
	CaseName                          string         `json:"caseName,omitempty"`
	Title                             string         `json:"title,omitempty"`
	CaseType                          string         `json:"caseType,omitempty"`
	SourceDepartment                  string         `json:"sourceDepartment,omitempty"`
	IncidentTime                      string         `json:"incidentTime,omitempty"`
	PersonName                        string         `json:"personName,omitempty"`
	PersonInfo                        PersonFields   `json:"personInfo,omitempty"`
	Charge                            string         `json:"charge,omitempty"`
	SuicideMethod                     string         `json:"suicideMethod,omitempty"`
	IncidentProcess                   string         `json:"incidentProcess,omitempty"`
	InvestigationProcessAndConclusion string         `json:"investigationProcessAndConclusion,omitempty"`
	CauseAndLesson                    string         `json:"causeAndLesson,omitempty"`
	CaseFiling                        string         `json:"caseFiling,omitempty"`
	Judgment                          string         `json:"judgment,omitempty"`
	Tags                              []string       `json:"tags,omitempty"`
	Classification                    Classification `json:"classification,omitempty"`
}

// FieldExtractor is implemented by Client and by test fakes.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (CaseFields, error)
}

var optionalString = map[string]any{"type": []any{"string", "null"}}

// CaseFieldsSchema is the JSON schema model output must satisfy. Unknown
// keys are tolerated and ignored.
func CaseFieldsSchema() map[string]any {
	props := map[string]any{}
	for _, key := range []string{
		"caseName", "title", "caseType", "sourceDepartment", "incidentTime",
		"personName", "charge", "suicideMethod", "incidentProcess",
		"investigationProcessAndConclusion", "causeAndLesson", "caseFiling", "judgment",
	} {
		props[key] = optionalString
	}

	person := map[string]any{}
	for _, key := range []string{"gender", "ethnicity", "birthplace", "enlistmentTime", "position", "category"} {
		person[key] = optionalString
	}
	props["personInfo"] = map[string]any{
		"type":       []any{"object", "null"},
		"properties": person,
	}
	props["tags"] = map[string]any{
		"type":  []any{"array", "null"},
		"items": map[string]any{"type": "string"},
	}
	props["classification"] = map[string]any{
		"type": []any{"object", "null"},
		"properties": map[string]any{
			"level1": optionalString,
			"level2": optionalString,
			"level3": optionalString,
		},
	}

	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	}
}

const extractSystemPrompt = `你是一名案卷信息提取助手。请从用户提供的案卷正文中提取结构化字段，只输出一个 JSON 对象，不要使用代码块包裹，不要输出任何解释文字。
可用的键如下（全部可选，原文没有的信息直接省略该键，不要编造，不要输出 null）：
caseName（卷宗名：时间+事发单位-人员类别+姓名+涉案罪名）、title、caseType、sourceDepartment、incidentTime（格式 YYYY-MM-DD 或 YYYY-MM-DD HH:MM:SS）、personName、
personInfo（对象，键为 gender、ethnicity、birthplace、enlistmentTime、position、category）、charge、suicideMethod、incidentProcess、
investigationProcessAndConclusion、causeAndLesson、caseFiling、judgment、tags（字符串数组）、classification（对象，键为 level1、level2、level3）。
所有值必须是字符串（tags 为字符串数组）。`

// ExtractFields asks the model for the case file fields found in text.
func (c *Client) ExtractFields(ctx context.Context, text string) (CaseFields, error) {
	if !c.Configured() {
		return CaseFields{}, ErrNotConfigured
	}

	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len(text),
	)

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	content, err := c.Complete(ctx, Request{
		Messages: []Message{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: "案卷正文：\n" + Truncate(text, maxExtractChars)},
		},
		Temperature: 0.1,
		MaxTokens:   4000,
		JSON:        true,
	})
	if err != nil {
		event := "llm.extract.http_error"
		if errors.Is(err, ErrMalformed) {
			event = "llm.extract.decode_error"
		}
		c.log.Error(event,
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return CaseFields{}, err
	}

	fields, err := ParseCaseFields(content)
	if err != nil {
		c.log.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err, "content", Truncate(content, 500),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return CaseFields{}, err
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"case_name", fields.CaseName,
		"person_name", fields.PersonName,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, nil
}

// ParseCaseFields validates raw model output and decodes it.
func ParseCaseFields(content string) (CaseFields, error) {
	raw := []byte(StripCodeFence(content))

	if err := ValidateJSONAgainstSchema(CaseFieldsSchema(), raw); err != nil {
		return CaseFields{}, err
	}

	var out CaseFields
	if err := json.Unmarshal(raw, &out); err != nil {
		return CaseFields{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}
