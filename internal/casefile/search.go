package casefile

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
)

const (
	SearchFuzzy = "fuzzy"
	SearchExact = "exact"

	SortRelevance = "relevance"
	SortTime      = "time"
	SortTitle     = "title"
)

// Relevance weights per matched field.
const (
	weightCaseName = 15
	weightTitle    = 10
	weightText     = 5
)

type SearchRequest struct {
	Keyword    string `json:"keyword"`
	SearchMode string `json:"search_mode"`
	// SearchScope is a comma separated subset of title,content,metadata,tags.
	SearchScope string `json:"search_scope"`
	CaseType    string `json:"case_type"`
	Department  string `json:"department"`
	SortBy      string `json:"sort_by"`
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
}

type SearchResult struct {
	ID               uint      `json:"id"`
	CaseNo           string    `json:"caseNo"`
	CaseName         string    `json:"caseName"`
	Title            string    `json:"title"`
	CaseType         string    `json:"caseType"`
	SourceDepartment string    `json:"sourceDepartment"`
	Date             time.Time `json:"date"`
	Relevance        int       `json:"relevance"`
	RelevanceScore   string    `json:"relevanceScore"`
	Fragments        []string  `json:"fragments"`
	Tags             []string  `json:"tags"`

	score int
}

type SearchMeta struct {
	Took    int64  `json:"took"`
	Keyword string `json:"keyword"`
}

func parseScopes(s string) map[string]bool {
	scopes := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			scopes[part] = true
		}
	}
	return scopes
}

// Search runs a keyword search over case files. Relevance ordering applies
// to the returned page only.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]SearchResult, int64, SearchMeta, error) {
	started := time.Now()
	keyword := strings.TrimSpace(req.Keyword)
	if keyword == "" {
		return nil, 0, SearchMeta{}, apperror.New(apperror.CodeMissingParameter, http.StatusBadRequest, "keyword is required")
	}
	page := database.NewPage(req.Page, req.PageSize)
	scopes := parseScopes(req.SearchScope)

	q := s.db.WithContext(ctx).Model(&database.CaseFile{})
	if req.SearchMode == SearchExact {
		if scopes["title"] {
			q = q.Where("title = ?", keyword)
		}
		if scopes["content"] {
			q = q.Where("ocr_text = ?", keyword)
		}
	} else {
		like := "%" + keyword + "%"
		var clauses []string
		var args []interface{}
		if scopes["title"] || len(scopes) == 0 {
			clauses = append(clauses, "case_name LIKE ?", "title LIKE ?")
			args = append(args, like, like)
		}
		if scopes["content"] || len(scopes) == 0 {
			clauses = append(clauses, "ocr_text LIKE ?")
			args = append(args, like)
		}
		if len(clauses) > 0 {
			q = q.Where(strings.Join(clauses, " OR "), args...)
		}
	}
	if req.CaseType != "" {
		q = q.Where("case_type = ?", req.CaseType)
	}
	if req.Department != "" {
		q = q.Where("source_department = ?", req.Department)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, SearchMeta{}, apperror.Internal(err)
	}

	switch req.SortBy {
	case SortTitle:
		q = q.Order("case_name ASC")
	default:
		q = q.Order("created_at DESC")
	}
	q = q.Order("id DESC")

	var rows []database.CaseFile
	if err := q.Scopes(database.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, 0, SearchMeta{}, apperror.Internal(err)
	}

	results := make([]SearchResult, 0, len(rows))
	for i := range rows {
		results = append(results, scoreCaseFile(&rows[i], keyword))
	}
	if req.SortBy == "" || req.SortBy == SortRelevance {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].score > results[j].score
		})
	}

	meta := SearchMeta{Took: time.Since(started).Milliseconds(), Keyword: keyword}
	return results, total, meta, nil
}

func scoreCaseFile(cf *database.CaseFile, keyword string) SearchResult {
	relevance := 0
	var fragments []string

	if frag, ok := firstFragment(cf.CaseName, keyword, 20); ok {
		relevance += weightCaseName
		fragments = append(fragments, frag)
	}
	if frag, ok := firstFragment(cf.Title, keyword, 20); ok {
		relevance += weightTitle
		fragments = append(fragments, frag)
	}
	if frags := textFragments(cf.OcrText, keyword, 30, 3); len(frags) > 0 {
		relevance += weightText
		fragments = append(fragments, frags...)
	}
	if len(fragments) > 3 {
		fragments = fragments[:3]
	}
	if fragments == nil {
		fragments = []string{}
	}

	score := relevance * 10
	if score > 100 {
		score = 100
	}
	stars := relevance / 2
	if stars > 5 {
		stars = 5
	}

	return SearchResult{
		ID:               cf.ID,
		CaseNo:           cf.CaseNo,
		CaseName:         cf.CaseName,
		Title:            cf.Title,
		CaseType:         cf.CaseType,
		SourceDepartment: cf.SourceDepartment,
		Date:             cf.CreatedAt,
		Relevance:        stars,
		RelevanceScore:   fmt.Sprintf("%d%%", score),
		Fragments:        fragments,
		Tags:             cf.TagList(),
		score:            score,
	}
}

// matchIndexes returns the rune offsets of case-insensitive matches of
// keyword in text, at most limit of them.
func matchIndexes(text, keyword []rune, limit int) []int {
	var out []int
	for i := 0; i+len(keyword) <= len(text) && len(out) < limit; {
		if strings.EqualFold(string(text[i:i+len(keyword)]), string(keyword)) {
			out = append(out, i)
			i += len(keyword)
			continue
		}
		i++
	}
	return out
}

func window(text []rune, idx, klen, radius int) string {
	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + klen + radius
	if end > len(text) {
		end = len(text)
	}
	return string(text[start:end])
}

func firstFragment(text, keyword string, radius int) (string, bool) {
	t, k := []rune(text), []rune(keyword)
	idx := matchIndexes(t, k, 1)
	if len(idx) == 0 {
		return "", false
	}
	return window(t, idx[0], len(k), radius), true
}

func textFragments(text, keyword string, radius, limit int) []string {
	t, k := []rune(text), []rune(keyword)
	var frags []string
	for _, idx := range matchIndexes(t, k, limit) {
		frags = append(frags, strings.TrimSpace(window(t, idx, len(k), radius)))
	}
	return frags
}
