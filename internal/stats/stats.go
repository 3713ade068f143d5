// Package stats computes the dashboard figures and the filtered statistics
// shown on the analysis page.
package stats

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/cache"
	"github.com/JustJay7/case-archive/internal/casefile"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/pkg/logger"
)

const (
	recentLimit    = 5
	unknownBucket  = "未分类"
	dashboardStats = "stats"
)

type Service struct {
	db     *gorm.DB
	files  *casefile.Service
	cache  cache.Cache
	logger *logger.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, files *casefile.Service, c cache.Cache, log *logger.Logger) *Service {
	return &Service{db: db, files: files, cache: c, logger: log, now: time.Now}
}

type DashboardStats struct {
	TotalCaseFiles int64 `json:"totalCaseFiles"`
	DigitizedCount int64 `json:"digitizedCount"`
	PendingTasks   int64 `json:"pendingTasks"`
	TodayAdded     int64 `json:"todayAdded"`
}

type Dashboard struct {
	Stats           DashboardStats      `json:"stats"`
	RecentCaseFiles []casefile.ListItem `json:"recentCaseFiles"`
}

// DashboardStats returns the headline counters, cached for the cache TTL.
func (s *Service) DashboardStats(ctx context.Context) (DashboardStats, error) {
	return cache.GetOrLoad(s.cache, cache.Key("dashboard", dashboardStats), func() (DashboardStats, error) {
		return s.loadDashboardStats(ctx)
	})
}

func (s *Service) loadDashboardStats(ctx context.Context) (DashboardStats, error) {
	var out DashboardStats
	db := s.db.WithContext(ctx)

	if err := db.Model(&database.CaseFile{}).Count(&out.TotalCaseFiles).Error; err != nil {
		return out, apperror.Internal(err)
	}
	if err := db.Model(&database.CaseFile{}).Where("ocr_text IS NOT NULL AND ocr_text <> ''").Count(&out.DigitizedCount).Error; err != nil {
		return out, apperror.Internal(err)
	}
	if err := db.Model(&database.OcrTask{}).Where("status IN ?", []string{database.OcrPending, database.OcrProcessing}).Count(&out.PendingTasks).Error; err != nil {
		return out, apperror.Internal(err)
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := db.Model(&database.CaseFile{}).Where("created_at >= ?", today).Count(&out.TodayAdded).Error; err != nil {
		return out, apperror.Internal(err)
	}
	return out, nil
}

// RecentCaseFiles returns the five newest case files.
func (s *Service) RecentCaseFiles(ctx context.Context) ([]casefile.ListItem, error) {
	items, _, err := s.files.List(ctx, casefile.ListFilter{}, database.NewPage(1, recentLimit))
	return items, err
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	st, err := s.DashboardStats(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.RecentCaseFiles(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Stats: st, RecentCaseFiles: recent}, nil
}

// Filter narrows the statistics. Dates are inclusive calendar days.
type Filter struct {
	From       *time.Time
	To         *time.Time
	CaseType   string
	Department string
}

// ParseFilter reads a "YYYY-MM-DD,YYYY-MM-DD" date range. Either side may be
// empty.
func ParseFilter(dateRange, caseType, department string) (Filter, error) {
	f := Filter{CaseType: strings.TrimSpace(caseType), Department: strings.TrimSpace(department)}
	dateRange = strings.TrimSpace(dateRange)
	if dateRange == "" {
		return f, nil
	}

	parts := strings.Split(dateRange, ",")
	if len(parts) != 2 {
		return f, apperror.InvalidParameter("date_range must be YYYY-MM-DD,YYYY-MM-DD")
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.ParseInLocation("2006-01-02", p, time.Local)
		if err != nil {
			return f, apperror.InvalidParameter("date_range must be YYYY-MM-DD,YYYY-MM-DD")
		}
		if i == 0 {
			f.From = &d
		} else {
			end := d.Add(24*time.Hour - time.Second)
			f.To = &end
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, apperror.InvalidParameter("date_range end is before its start")
	}
	return f, nil
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	if f.CaseType != "" {
		q = q.Where("case_type = ?", f.CaseType)
	}
	if f.Department != "" {
		q = q.Where("source_department = ?", f.Department)
	}
	return q
}

type Bucket struct {
	Name       string  `json:"name"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Statistics struct {
	Total          int64    `json:"total"`
	Completed      int64    `json:"completed"`
	CompletionRate float64  `json:"completionRate"`
	ByStatus       []Bucket `json:"byStatus"`
	ByCaseType     []Bucket `json:"byCaseType"`
	ByDepartment   []Bucket `json:"byDepartment"`
}

// Statistics counts the filtered case files by status, case type and
// department.
func (s *Service) Statistics(ctx context.Context, f Filter) (*Statistics, error) {
	base := func() *gorm.DB {
		return f.apply(s.db.WithContext(ctx).Model(&database.CaseFile{}))
	}

	out := &Statistics{}
	if err := base().Count(&out.Total).Error; err != nil {
		return nil, apperror.Internal(err)
	}

	var err error
	if out.ByStatus, err = s.group(base(), "status", out.Total); err != nil {
		return nil, err
	}
	if out.ByCaseType, err = s.group(base(), "case_type", out.Total); err != nil {
		return nil, err
	}
	if out.ByDepartment, err = s.group(base(), "source_department", out.Total); err != nil {
		return nil, err
	}

	for _, b := range out.ByStatus {
		if b.Name == database.StatusCompleted {
			out.Completed = b.Count
		}
	}
	out.CompletionRate = percent(out.Completed, out.Total)
	return out, nil
}

func (s *Service) group(q *gorm.DB, column string, total int64) ([]Bucket, error) {
	var rows []struct {
		Name  string
		Count int64
	}
	err := q.Select(column + " AS name, COUNT(*) AS count").
		Group(column).
		Order("count DESC").
		Order("name").
		Scan(&rows).Error
	if err != nil {
		return nil, apperror.Internal(err)
	}

	merged := map[string]int{}
	buckets := []Bucket{}
	for _, r := range rows {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = unknownBucket
		}
		if i, ok := merged[name]; ok {
			buckets[i].Count += r.Count
			continue
		}
		merged[name] = len(buckets)
		buckets = append(buckets, Bucket{Name: name, Count: r.Count})
	}
	for i := range buckets {
		buckets[i].Percentage = percent(buckets[i].Count, total)
	}
	return buckets, nil
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(int64(float64(n)*10000/float64(total)+0.5)) / 100
}
