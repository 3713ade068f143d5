package database

import (
	"time"

	"gorm.io/datatypes"
)

// Case file lifecycle states.
const (
	StatusPending   = "pending"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

// Import task states.
const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
)

// OCR task states.
const (
	OcrPending    = "pending"
	OcrProcessing = "processing"
	OcrCompleted  = "completed"
	OcrFailed     = "failed"
)

// Document generation task states.
const (
	DocGenerating = "generating"
	DocCompleted  = "completed"
	DocFailed     = "failed"
)

// Roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:50;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	RealName     string    `json:"realName" gorm:"size:100"`
	Department   string    `json:"department" gorm:"size:100"`
	Role         string    `json:"role" gorm:"size:20;default:user;index"`
	Status       int       `json:"status" gorm:"default:1"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PersonInfo is the nested description of the person a case file is about.
type PersonInfo struct {
	Gender         string `json:"gender,omitempty"`
	Ethnicity      string `json:"ethnicity,omitempty"`
	Birthplace     string `json:"birthplace,omitempty"`
	EnlistmentTime string `json:"enlistmentTime,omitempty"`
	Position       string `json:"position,omitempty"`
	Category       string `json:"category,omitempty"`
}

type TimelineEntry struct {
	Time  string `json:"time"`
	Event string `json:"event"`
}

// CaseFile is one imported document together with its extracted and
// reviewed fields. Rows are hard deleted.
type CaseFile struct {
	ID               uint       `gorm:"primaryKey"`
	CaseNo           string     `gorm:"size:50;uniqueIndex"`
	CaseName         string     `gorm:"size:500;index"`
	Title            string     `gorm:"size:500"`
	CaseType         string     `gorm:"size:50;index"`
	SourceDepartment string     `gorm:"size:100"`
	IncidentTime     *time.Time `gorm:"index"`
	PersonName       string     `gorm:"size:100;index"`
	PersonInfo       datatypes.JSONType[PersonInfo]
	Charge           string `gorm:"size:200"`
	SuicideMethod    string `gorm:"type:text"`

	IncidentProcess                   string `gorm:"type:text"`
	InvestigationProcessAndConclusion string `gorm:"type:text"`
	CauseAndLesson                    string `gorm:"type:text"`
	CaseFiling                        string `gorm:"type:text"`
	Judgment                          string `gorm:"type:text"`

	FilePath             string                              `gorm:"size:500"`
	FileSize             int64                               `gorm:"default:0"`
	FileType             string                              `gorm:"size:50"`
	OcrText              string                              `gorm:"column:ocr_text;type:text"`
	MetaData             datatypes.JSONMap                   `gorm:"column:meta_data"`
	Tags                 datatypes.JSONType[[]string]        `gorm:"column:tags"`
	ClassificationLevel1 string                              `gorm:"column:classification_level1;size:50"`
	ClassificationLevel2 string                              `gorm:"column:classification_level2;size:50"`
	ClassificationLevel3 string                              `gorm:"column:classification_level3;size:50"`
	Timeline             datatypes.JSONType[[]TimelineEntry] `gorm:"column:timeline"`
	Status               string                              `gorm:"size:20;default:pending;index"`
	CreatedBy            *uint                               `gorm:"index"`
	CreatedAt            time.Time                           `gorm:"index"`
	UpdatedAt            time.Time
}

// TagList returns the tags, never nil.
func (c *CaseFile) TagList() []string {
	tags := c.Tags.Data()
	if tags == nil {
		return []string{}
	}
	return tags
}

// TimelineEntries returns the timeline, never nil.
func (c *CaseFile) TimelineEntries() []TimelineEntry {
	entries := c.Timeline.Data()
	if entries == nil {
		return []TimelineEntry{}
	}
	return entries
}

// Meta returns the metadata map, never nil.
func (c *CaseFile) Meta() map[string]interface{} {
	if c.MetaData == nil {
		return map[string]interface{}{}
	}
	return c.MetaData
}

// MetaString reads a string value out of the metadata map.
func (c *CaseFile) MetaString(key string) string {
	if v, ok := c.MetaData[key].(string); ok {
		return v
	}
	return ""
}

// ImportTask summarizes one batch import run.
type ImportTask struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	TaskName     string    `json:"taskName" gorm:"size:200"`
	TotalFiles   int       `json:"totalFiles"`
	SuccessFiles int       `json:"successFiles"`
	FailedFiles  int       `json:"failedFiles"`
	Status       string    `json:"status" gorm:"size:20;default:running;index"`
	ErrorMessage string    `json:"errorMessage,omitempty" gorm:"type:text"`
	CreatedBy    *uint     `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type OcrTask struct {
	ID           uint              `json:"id" gorm:"primaryKey"`
	CaseFileID   *uint             `json:"caseFileId" gorm:"index"`
	CaseFile     *CaseFile         `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	FileName     string            `json:"fileName" gorm:"size:500"`
	FilePath     string            `json:"filePath" gorm:"size:500"`
	FileSize     int64             `json:"fileSize"`
	FileType     string            `json:"fileType" gorm:"size:50"`
	Status       string            `json:"status" gorm:"size:20;default:pending;index"`
	Progress     int               `json:"progress"`
	CurrentStep  string            `json:"currentStep" gorm:"size:50"`
	StepsInfo    datatypes.JSONMap `json:"steps"`
	OcrText      string            `json:"ocrText" gorm:"column:ocr_text;type:text"`
	Accuracy     *float64          `json:"accuracy"`
	MetaData     datatypes.JSONMap `json:"metadata" gorm:"column:meta_data"`
	ErrorMessage string            `json:"errorMessage" gorm:"type:text"`
	StartTime    *time.Time        `json:"startTime"`
	EndTime      *time.Time        `json:"endTime"`
	CreatedAt    time.Time         `json:"createdAt" gorm:"index"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

type DocTemplate struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:100;not null;index"`
	DocType     string    `json:"doc_type" gorm:"size:50;not null;index"`
	Description string    `json:"description" gorm:"size:500"`
	FilePath    string    `json:"file_path" gorm:"size:500"`
	Version     int       `json:"version" gorm:"default:1"`
	Status      int       `json:"status" gorm:"default:1"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DocGenerateTask struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	TaskID       string    `json:"taskId" gorm:"size:50;uniqueIndex"`
	TemplateID   string    `json:"templateId" gorm:"size:50"`
	DocType      string    `json:"docType" gorm:"size:50"`
	Status       string    `json:"status" gorm:"size:20;default:generating;index"`
	FilePath     string    `json:"filePath" gorm:"size:500"`
	ErrorMessage string    `json:"errorMessage" gorm:"type:text"`
	CreatedBy    *uint     `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AuditLog records one security relevant action.
type AuditLog struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       *uint     `json:"userId" gorm:"index"`
	Username     string    `json:"username" gorm:"size:50;index"`
	Action       string    `json:"action" gorm:"size:50;not null;index"`
	ResourceType string    `json:"resourceType" gorm:"size:50;index"`
	ResourceID   *uint     `json:"resourceId"`
	RequestID    string    `json:"requestId" gorm:"size:100;index"`
	Method       string    `json:"method" gorm:"size:10"`
	Path         string    `json:"path" gorm:"size:500"`
	ClientIP     string    `json:"clientIp" gorm:"size:50;index"`
	UserAgent    string    `json:"userAgent" gorm:"size:500"`
	Description  string    `json:"description" gorm:"type:text"`
	Details      string    `json:"details" gorm:"type:text"`
	Status       string    `json:"status" gorm:"size:20;not null;index"`
	StatusCode   int       `json:"statusCode"`
	ErrorMessage string    `json:"errorMessage" gorm:"type:text"`
	CreatedAt    time.Time `json:"createdAt" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

func (CaseFile) TableName() string {
	return "case_files"
}

func (ImportTask) TableName() string {
	return "import_tasks"
}

func (OcrTask) TableName() string {
	return "ocr_tasks"
}

func (DocTemplate) TableName() string {
	return "doc_templates"
}

func (DocGenerateTask) TableName() string {
	return "doc_generate_tasks"
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
