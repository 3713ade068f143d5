package casefile

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/llm"
)

// NewCaseNo returns CF<yyyyMMddHHmmss><8 random hex digits>.
func NewCaseNo(now time.Time) string {
	id := uuid.New()
	return "CF" + now.Format("20060102150405") + hex.EncodeToString(id[:4])
}

var incidentTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	"2006年01月02日15时04分",
	"2006年1月2日15时4分",
	"2006年01月02日",
	"2006年1月2日",
	"2006-01",
	"2006年01月",
	"2006年1月",
}

// ParseIncidentTime accepts the date formats the model and reviewers tend to
// produce. It returns nil when nothing matches.
func ParseIncidentTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range incidentTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// setIncidentTime stores a parsed time, or keeps unparseable text in the
// metadata so reviewers still see it.
func setIncidentTime(cf *database.CaseFile, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if t := ParseIncidentTime(v); t != nil {
		cf.IncidentTime = t
		return
	}
	meta := cf.Meta()
	meta["incidentTimeText"] = v
	cf.MetaData = datatypes.JSONMap(meta)
}

func mergePerson(cf *database.CaseFile, p llm.PersonFields) {
	info := cf.PersonInfo.Data()
	setString(&info.Gender, p.Gender)
	setString(&info.Ethnicity, p.Ethnicity)
	setString(&info.Birthplace, p.Birthplace)
	setString(&info.EnlistmentTime, p.EnlistmentTime)
	setString(&info.Position, p.Position)
	setString(&info.Category, p.Category)
	cf.PersonInfo = datatypes.NewJSONType(info)
}

// ApplyFields merges extracted or reviewed fields into cf. A non-empty new
// value replaces the old one; empty values never clear a field.
func ApplyFields(cf *database.CaseFile, f llm.CaseFields) {
	setString(&cf.CaseName, f.CaseName)
	setString(&cf.Title, f.Title)
	setString(&cf.CaseType, f.CaseType)
	setString(&cf.SourceDepartment, f.SourceDepartment)
	setIncidentTime(cf, f.IncidentTime)
	setString(&cf.PersonName, f.PersonName)
	mergePerson(cf, f.PersonInfo)
	setString(&cf.Charge, f.Charge)
	setString(&cf.SuicideMethod, f.SuicideMethod)
	setString(&cf.IncidentProcess, f.IncidentProcess)
	setString(&cf.InvestigationProcessAndConclusion, f.InvestigationProcessAndConclusion)
	setString(&cf.CauseAndLesson, f.CauseAndLesson)
	setString(&cf.CaseFiling, f.CaseFiling)
	setString(&cf.Judgment, f.Judgment)

	if tags := cleanTags(f.Tags); len(tags) > 0 {
		cf.Tags = datatypes.NewJSONType(tags)
	}
	setString(&cf.ClassificationLevel1, f.Classification.Level1)
	setString(&cf.ClassificationLevel2, f.Classification.Level2)
	setString(&cf.ClassificationLevel3, f.Classification.Level3)
}

func cleanTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ReviewFields is the body reviewers send when saving or archiving.
type ReviewFields struct {
	CaseName                string              `json:"caseName"`
	IncidentTime            string              `json:"incidentTime"`
	IncidentUnit            string              `json:"incidentUnit"`
	PersonName              string              `json:"personName"`
	PersonGender            string              `json:"personGender"`
	PersonEthnicity         string              `json:"personEthnicity"`
	PersonBirthplace        string              `json:"personBirthplace"`
	PersonEnlistTime        string              `json:"personEnlistTime"`
	PersonPosition          string              `json:"personPosition"`
	PersonCategory          string              `json:"personCategory"`
	Charge                  string              `json:"charge"`
	SuicideMethod           string              `json:"suicideMethod"`
	IncidentProcess         string              `json:"incidentProcess"`
	InvestigationProcess    string              `json:"investigationProcess"`
	InvestigationConclusion string              `json:"investigationConclusion"`
	CauseAndLesson          string              `json:"causeAndLesson"`
	CaseFiling              string              `json:"caseFiling"`
	Judgment                string              `json:"judgment"`
	Classification          *llm.Classification `json:"classification"`
	Tags                    []string            `json:"tags"`
}

// CaseFields converts the review form into the shape ApplyFields merges.
// Investigation process and conclusion share one column.
func (r ReviewFields) CaseFields() llm.CaseFields {
	var investigation []string
	for _, part := range []string{r.InvestigationProcess, r.InvestigationConclusion} {
		if p := strings.TrimSpace(part); p != "" {
			investigation = append(investigation, p)
		}
	}

	f := llm.CaseFields{
		CaseName:         r.CaseName,
		IncidentTime:     r.IncidentTime,
		SourceDepartment: r.IncidentUnit,
		PersonName:       r.PersonName,
		PersonInfo: llm.PersonFields{
			Gender:         r.PersonGender,
			Ethnicity:      r.PersonEthnicity,
			Birthplace:     r.PersonBirthplace,
			EnlistmentTime: r.PersonEnlistTime,
			Position:       r.PersonPosition,
			Category:       r.PersonCategory,
		},
		Charge:                            r.Charge,
		SuicideMethod:                     r.SuicideMethod,
		IncidentProcess:                   r.IncidentProcess,
		InvestigationProcessAndConclusion: strings.Join(investigation, "\n"),
		CauseAndLesson:                    r.CauseAndLesson,
		CaseFiling:                        r.CaseFiling,
		Judgment:                          r.Judgment,
		Tags:                              r.Tags,
	}
	if r.Classification != nil {
		f.Classification = *r.Classification
	}
	return f
}

// ExtractedData is the flattened field view shown to reviewers.
func ExtractedData(cf *database.CaseFile) map[string]any {
	p := cf.PersonInfo.Data()
	var incidentTime string
	if cf.IncidentTime != nil {
		incidentTime = cf.IncidentTime.Format("2006-01-02")
	} else {
		incidentTime = cf.MetaString("incidentTimeText")
	}
	return map[string]any{
		"caseName":                          cf.CaseName,
		"title":                             cf.Title,
		"caseType":                          cf.CaseType,
		"incidentTime":                      incidentTime,
		"incidentUnit":                      cf.SourceDepartment,
		"personName":                        cf.PersonName,
		"personGender":                      p.Gender,
		"personEthnicity":                   p.Ethnicity,
		"personBirthplace":                  p.Birthplace,
		"personEnlistTime":                  p.EnlistmentTime,
		"personPosition":                    p.Position,
		"personCategory":                    p.Category,
		"charge":                            cf.Charge,
		"suicideMethod":                     cf.SuicideMethod,
		"incidentProcess":                   cf.IncidentProcess,
		"investigationProcessAndConclusion": cf.InvestigationProcessAndConclusion,
		"causeAndLesson":                    cf.CauseAndLesson,
		"caseFiling":                        cf.CaseFiling,
		"judgment":                          cf.Judgment,
	}
}
