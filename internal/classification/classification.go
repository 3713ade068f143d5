// Package classification projects archived case files onto a three level
// category tree and lets reviewers confirm categories.
package classification

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/llm"
	"github.com/JustJay7/case-archive/pkg/logger"
)

const unclassified = "(classification_level1 IS NULL OR classification_level1 = '')"

type Service struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewService(db *gorm.DB, log *logger.Logger) *Service {
	return &Service{db: db, logger: log}
}

// Node is one level of the tree. Level three nodes have no children.
type Node struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Count    int64   `json:"count"`
	Children []*Node `json:"children,omitempty"`
}

type groupRow struct {
	ClassificationLevel1 string
	ClassificationLevel2 string
	ClassificationLevel3 string
	Count                int64
}

// Tree counts completed case files per category. It is recomputed on every
// call.
func (s *Service) Tree(ctx context.Context) ([]*Node, error) {
	var rows []groupRow
	err := s.db.WithContext(ctx).Model(&database.CaseFile{}).
		Select("classification_level1, classification_level2, classification_level3, COUNT(id) AS count").
		Where("status = ?", database.StatusCompleted).
		Where("NOT " + unclassified).
		Group("classification_level1, classification_level2, classification_level3").
		Order("classification_level1, classification_level2, classification_level3").
		Scan(&rows).Error
	if err != nil {
		return nil, apperror.Internal(err)
	}

	tree := []*Node{}
	level1 := map[string]*Node{}
	level2 := map[string]*Node{}
	for _, r := range rows {
		l1, l2, l3 := r.ClassificationLevel1, r.ClassificationLevel2, r.ClassificationLevel3

		n1, ok := level1[l1]
		if !ok {
			n1 = &Node{ID: NodeID(l1), Name: l1, Children: []*Node{}}
			level1[l1] = n1
			tree = append(tree, n1)
		}
		n1.Count += r.Count
		if l2 == "" {
			continue
		}

		key := l1 + "\x00" + l2
		n2, ok := level2[key]
		if !ok {
			n2 = &Node{ID: NodeID(l1, l2), Name: l2, Children: []*Node{}}
			level2[key] = n2
			n1.Children = append(n1.Children, n2)
		}
		n2.Count += r.Count
		if l3 == "" {
			continue
		}
		n2.Children = append(n2.Children, &Node{ID: NodeID(l1, l2, l3), Name: l3, Count: r.Count})
	}
	return tree, nil
}

// UnconfirmedItem is a completed case file whose category is incomplete.
type UnconfirmedItem struct {
	ID                   uint                   `json:"id"`
	CaseNo               string                 `json:"caseNo"`
	CaseName             string                 `json:"caseName"`
	Title                string                 `json:"title"`
	AutoClassification   llm.Classification     `json:"autoClassification"`
	ManualClassification *llm.Classification    `json:"manualClassification"`
	Confidence           int                    `json:"confidence"`
	Metadata             map[string]interface{} `json:"metadata"`
}

// Unconfirmed lists completed files missing level one or level two.
func (s *Service) Unconfirmed(ctx context.Context, page database.Page) ([]UnconfirmedItem, int64, error) {
	q := s.db.WithContext(ctx).Model(&database.CaseFile{}).
		Where("status = ?", database.StatusCompleted).
		Where(unclassified + " OR classification_level2 IS NULL OR classification_level2 = ''")

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	var rows []database.CaseFile
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(database.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	items := make([]UnconfirmedItem, 0, len(rows))
	for _, cf := range rows {
		confidence := 0
		if cf.ClassificationLevel1 != "" {
			confidence = 75
		}
		items = append(items, UnconfirmedItem{
			ID:       cf.ID,
			CaseNo:   cf.CaseNo,
			CaseName: cf.CaseName,
			Title:    cf.Title,
			AutoClassification: llm.Classification{
				Level1: cf.ClassificationLevel1,
				Level2: cf.ClassificationLevel2,
				Level3: cf.ClassificationLevel3,
			},
			Confidence: confidence,
			Metadata:   cf.Meta(),
		})
	}
	return items, total, nil
}

func classificationColumns(c llm.Classification) map[string]interface{} {
	return map[string]interface{}{
		"classification_level1": strings.TrimSpace(c.Level1),
		"classification_level2": strings.TrimSpace(c.Level2),
		"classification_level3": strings.TrimSpace(c.Level3),
	}
}

// Confirm replaces the category of one case file.
func (s *Service) Confirm(ctx context.Context, id uint, c llm.Classification) error {
	res := s.db.WithContext(ctx).Model(&database.CaseFile{}).Where("id = ?", id).Updates(classificationColumns(c))
	if res.Error != nil {
		return apperror.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("case file not found")
	}
	s.logger.Info("Classification confirmed", "case_file_id", id, "level1", c.Level1)
	return nil
}

// BatchConfirm applies one category to every existing id and returns how many
// rows were updated.
func (s *Service) BatchConfirm(ctx context.Context, ids []uint, c llm.Classification) (int64, error) {
	if len(ids) == 0 {
		return 0, apperror.BadRequest("caseFileIds is required")
	}
	res := s.db.WithContext(ctx).Model(&database.CaseFile{}).Where("id IN ?", ids).Updates(classificationColumns(c))
	if res.Error != nil {
		return 0, apperror.Internal(res.Error)
	}
	s.logger.Info("Classification batch confirmed", "count", res.RowsAffected, "level1", c.Level1)
	return res.RowsAffected, nil
}

// CaseFileItem is one case file under a tree node.
type CaseFileItem struct {
	ID               uint      `json:"id"`
	CaseNo           string    `json:"caseNo"`
	CaseName         string    `json:"caseName"`
	Title            string    `json:"title"`
	SourceDepartment string    `json:"sourceDepartment"`
	Tags             []string  `json:"tags"`
	CreatedAt        time.Time `json:"createdAt"`
}

var segmentEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// NodeID builds l1_<a>, l2_<a>_<b> or l3_<a>_<b>_<c>. Underscores and
// percent signs inside a category name are percent-encoded.
func NodeID(levels ...string) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = segmentEscaper.Replace(l)
	}
	return fmt.Sprintf("l%d_%s", len(levels), strings.Join(parts, "_"))
}

// ParseNodeID reverses NodeID.
func ParseNodeID(id string) ([]string, error) {
	invalid := apperror.InvalidParameter("invalid classification id")

	var n int
	switch {
	case strings.HasPrefix(id, "l1_"):
		n = 1
	case strings.HasPrefix(id, "l2_"):
		n = 2
	case strings.HasPrefix(id, "l3_"):
		n = 3
	default:
		return nil, invalid
	}
	parts := strings.Split(id[3:], "_")
	if len(parts) != n {
		return nil, invalid
	}
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil || v == "" {
			return nil, invalid
		}
		parts[i] = v
	}
	return parts, nil
}

// CaseFiles lists the completed files below a tree node.
func (s *Service) CaseFiles(ctx context.Context, nodeID string, page database.Page) ([]CaseFileItem, int64, error) {
	levels, err := ParseNodeID(nodeID)
	if err != nil {
		return nil, 0, err
	}

	q := s.db.WithContext(ctx).Model(&database.CaseFile{}).Where("status = ?", database.StatusCompleted)
	columns := []string{"classification_level1", "classification_level2", "classification_level3"}
	for i, v := range levels {
		q = q.Where(columns[i]+" = ?", v)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	var rows []database.CaseFile
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(database.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, 0, apperror.Internal(err)
	}

	items := make([]CaseFileItem, 0, len(rows))
	for i := range rows {
		cf := &rows[i]
		items = append(items, CaseFileItem{
			ID:               cf.ID,
			CaseNo:           cf.CaseNo,
			CaseName:         cf.CaseName,
			Title:            cf.Title,
			SourceDepartment: cf.SourceDepartment,
			Tags:             cf.TagList(),
			CreatedAt:        cf.CreatedAt,
		})
	}
	return items, total, nil
}
