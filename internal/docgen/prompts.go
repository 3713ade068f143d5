package docgen

import (
	"strconv"
	"strings"
)

// Document families. Each family reads a different part of Input.
var (
	caseDocTypes     = []string{"立案报告", "调查报告", "讯问笔录提纲", "案件处理意见", "案件卷宗", "案件报告", "案件总结"}
	officialDocTypes = []string{"请示", "汇报", "通知", "函"}
	reportDocTypes   = []string{"工作总结", "统计分析报告", "形势分析报告"}
)

const MeetingDocType = "会议纪要"

const (
	defaultHint        = "当前使用的是通用模板格式，实际使用时请根据单位规定的模板进行调整。"
	defaultMeetingHint = "当前使用的是通用会议纪要格式，实际使用时请根据单位规定的模板进行调整。"
)

// CaseInfo is the case clue entered before generating a case document.
type CaseInfo struct {
	IncidentTime    string `json:"incidentTime"`
	CaseType        string `json:"caseType"`
	PersonName      string `json:"personName"`
	Department      string `json:"department"`
	Gender          string `json:"gender"`
	Position        string `json:"position"`
	EnlistmentTime  string `json:"enlistmentTime"`
	IncidentProcess string `json:"incidentProcess"`
	Investigation   string `json:"investigation"`
}

type CaseRef struct {
	CaseNo   string `json:"caseNo"`
	CaseName string `json:"caseName"`
	Title    string `json:"title"`
}

// FormData carries the free-form fields of the official and report forms.
type FormData struct {
	Recipient  string `json:"recipient"`
	Subject    string `json:"subject"`
	Content    string `json:"content"`
	Situation  string `json:"situation"`
	Problems   string `json:"problems"`
	Plan       string `json:"plan"`
	Title      string `json:"title"`
	Highlights string `json:"highlights"`
	Plans      string `json:"plans"`
}

type TypeShare struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Statistics struct {
	TotalCases           int         `json:"totalCases"`
	CompletedCases       int         `json:"completedCases"`
	PendingCases         int         `json:"pendingCases"`
	CompletionRate       float64     `json:"completionRate"`
	CaseTypeDistribution []TypeShare `json:"caseTypeDistribution"`
}

// Input is everything a generation run may draw on. Which fields are read
// depends on DocType.
type Input struct {
	DocType      string
	TemplateID   string
	CaseInfo     *CaseInfo
	RelatedCases []CaseRef
	FormData     FormData
	SelectedCase *CaseRef
	Statistics   *Statistics
	ReportPeriod string
	MeetingText  string
	MeetingTitle string
	MeetingTime  string
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return "未提供"
	}
	return s
}

// SystemPrompt frames the model as a document writer for docType.
func SystemPrompt(docType, hint string) string {
	var b strings.Builder
	b.WriteString("你是一位专业的军事保卫部门文书写作助手。你的任务是帮助用户生成规范的" + docType + "文档。\n\n")
	b.WriteString("要求：\n")
	b.WriteString("1. 文档格式要符合军事机关公文规范\n")
	b.WriteString("2. 内容要准确、严谨、条理清晰\n")
	b.WriteString("3. 语言要正式、规范，符合公文写作要求\n")
	b.WriteString("4. 必须严格以用户提供的案件/表单信息为基础生成内容，文书中的时间、人员、单位、经过、调查情况等只能使用用户给出的信息，不得编造或泛化\n")
	b.WriteString("5. 使用 Markdown 格式输出文档内容\n")
	b.WriteString("6. 直接输出 Markdown 内容，不要使用代码块包裹（不要使用 ```markdown 或 ```html 等）\n")
	b.WriteString("7. 使用标准 Markdown 语法：标题用 #，段落用空行分隔，列表用 - 或 1.，加粗用 **，斜体用 *\n\n")
	if hint != "" {
		b.WriteString("模板说明：" + hint + "\n\n")
	}
	b.WriteString("请根据用户提供的信息，生成规范的 Markdown 格式文档内容。")
	return b.String()
}

// UserPrompt lays out the input for the model, using only the fields that
// belong to the document family.
func UserPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("请生成一份" + in.DocType + "，具体要求如下：\n")

	switch {
	case contains(caseDocTypes, in.DocType):
		writeCase(&b, in)
	case contains(officialDocTypes, in.DocType):
		writeOfficial(&b, in)
	case contains(reportDocTypes, in.DocType):
		writeReport(&b, in)
	case in.DocType == MeetingDocType:
		writeMeeting(&b, in)
	}

	b.WriteString("\n请生成完整的文档内容，使用 Markdown 格式，包含适当的标题、段落、列表等格式。")
	b.WriteString("\n重要要求：")
	b.WriteString("\n1. 直接输出 Markdown 格式的内容，不要使用代码块包裹（不要使用 ```markdown 或 ```html 等）")
	b.WriteString("\n2. 使用标准的 Markdown 语法：标题用 #，段落用空行分隔，列表用 - 或 1.，加粗用 **，斜体用 *")
	b.WriteString("\n3. 确保格式规范，便于阅读和编辑")
	return b.String()
}

func writeCase(b *strings.Builder, in Input) {
	b.WriteString("\n【以下为第一步填写的案件线索信息，必须作为生成内容的唯一依据】\n")
	if ci := in.CaseInfo; ci != nil {
		b.WriteString("案件信息：\n")
		b.WriteString("- 案发时间：" + orMissing(ci.IncidentTime) + "\n")
		b.WriteString("- 案件类型：" + orMissing(ci.CaseType) + "\n")
		b.WriteString("- 涉案人员姓名：" + orMissing(ci.PersonName) + "\n")
		b.WriteString("- 所属单位：" + orMissing(ci.Department) + "\n")
		optional(b, "- 性别：", ci.Gender)
		optional(b, "- 职务/职级：", ci.Position)
		optional(b, "- 入伍时间：", ci.EnlistmentTime)
		optional(b, "- 事发经过：", ci.IncidentProcess)
		optional(b, "- 初步调查情况：", ci.Investigation)
	} else {
		b.WriteString("（未提供案件信息）\n")
	}

	if len(in.RelatedCases) > 0 {
		b.WriteString("\n参考/关联案件：\n")
		for _, rc := range in.RelatedCases {
			name := rc.CaseName
			if name == "" {
				name = rc.Title
			}
			b.WriteString("- " + rc.CaseNo + "：" + name + "\n")
		}
	}

	b.WriteString("\n【生成要求】必须严格以上述案件信息为基础生成本文书。文书中的时间、人员、单位、经过、调查情况等均只能使用上述内容，不得编造或使用泛化表述；若某项未提供则用“待补充”等表述，不要虚构。\n")
}

func writeOfficial(b *strings.Builder, in Input) {
	b.WriteString("公文信息：\n")
	fd := in.FormData
	optional(b, "- 主送机关/收文对象：", fd.Recipient)
	optional(b, "- 主题：", fd.Subject)
	optional(b, "- 内容：", fd.Content)
	optional(b, "- 工作情况：", fd.Situation)
	optional(b, "- 存在问题：", fd.Problems)
	optional(b, "- 下步计划：", fd.Plan)

	if in.SelectedCase != nil {
		b.WriteString("\n关联案件：" + in.SelectedCase.CaseNo + "\n")
	}
}

func writeReport(b *strings.Builder, in Input) {
	b.WriteString("报告信息：\n")
	fd := in.FormData
	optional(b, "- 报告标题：", fd.Title)
	optional(b, "- 报告周期：", in.ReportPeriod)

	if st := in.Statistics; st != nil {
		b.WriteString("- 案件总数：" + strconv.Itoa(st.TotalCases) + "件\n")
		b.WriteString("- 已办结：" + strconv.Itoa(st.CompletedCases) + "件\n")
		b.WriteString("- 待处理：" + strconv.Itoa(st.PendingCases) + "件\n")
		b.WriteString("- 办结率：" + num(st.CompletionRate) + "%\n")

		if len(st.CaseTypeDistribution) > 0 {
			b.WriteString("\n案件类型分布：\n")
			for _, d := range st.CaseTypeDistribution {
				b.WriteString("- " + d.Name + "：" + strconv.Itoa(d.Count) + "件，占比" + num(d.Percentage) + "%\n")
			}
		}
	}

	if fd.Highlights != "" {
		b.WriteString("\n工作亮点：" + fd.Highlights + "\n")
	}
	if fd.Problems != "" {
		b.WriteString("\n存在问题：" + fd.Problems + "\n")
	}
	if fd.Plans != "" {
		b.WriteString("\n下步计划：" + fd.Plans + "\n")
	}
}

func writeMeeting(b *strings.Builder, in Input) {
	b.WriteString("\n【以下为会议录音转写内容或会议随记，请据此整理成规范的会议纪要】\n\n")
	if in.MeetingText != "" {
		b.WriteString("会议原始内容：\n")
		b.WriteString(in.MeetingText)
		b.WriteString("\n\n")
	}
	optional(b, "会议主题：", in.MeetingTitle)
	optional(b, "会议时间：", in.MeetingTime)
	b.WriteString("\n【生成要求】请将上述内容整理成标准会议纪要，结构需包含：一、会议基本信息（时间、地点、参会人员、主持等）；二、会议议题与讨论内容；三、议定事项或决议；四、待办与分工（如有）。内容必须严格基于上述原始内容，不得编造；若信息不全可标注“待补充”。\n")
}

func optional(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString(label + value + "\n")
}
