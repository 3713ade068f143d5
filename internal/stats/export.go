package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
)

const (
	summarySheet = "统计概览"
	detailSheet  = "案卷明细"
	maxDetail    = 10000
)

var statusLabels = map[string]string{
	database.StatusPending:   "待审核",
	database.StatusFailed:    "提取失败",
	database.StatusCompleted: "已归档",
}

// ExportXLSX builds a workbook with the filtered statistics and the matching
// case files.
func (s *Service) ExportXLSX(ctx context.Context, flt Filter) ([]byte, error) {
	start := time.Now()

	st, err := s.Statistics(ctx, flt)
	if err != nil {
		return nil, err
	}

	var files []database.CaseFile
	err = flt.apply(s.db.WithContext(ctx).Model(&database.CaseFile{})).
		Order("created_at DESC").Order("id DESC").
		Limit(maxDetail).
		Find(&files).Error
	if err != nil {
		return nil, apperror.Internal(err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, apperror.Internal(err)
	}
	if index, _ := f.GetSheetIndex(detailSheet); index == -1 {
		if _, err := f.NewSheet(detailSheet); err != nil {
			return nil, apperror.Internal(err)
		}
	}
	activeIndex, _ := f.GetSheetIndex(summarySheet)
	f.SetActiveSheet(activeIndex)

	row := 1
	write := func(sheet string, col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(summarySheet, 1, "案卷总数")
	write(summarySheet, 2, st.Total)
	row++
	write(summarySheet, 1, "已归档")
	write(summarySheet, 2, st.Completed)
	row++
	write(summarySheet, 1, "归档率(%)")
	write(summarySheet, 2, st.CompletionRate)
	row += 2

	section := func(title string, buckets []Bucket, label func(string) string) {
		write(summarySheet, 1, title)
		write(summarySheet, 2, "数量")
		write(summarySheet, 3, "占比(%)")
		row++
		for _, b := range buckets {
			write(summarySheet, 1, label(b.Name))
			write(summarySheet, 2, b.Count)
			write(summarySheet, 3, b.Percentage)
			row++
		}
		row++
	}
	same := func(s string) string { return s }
	section("状态", st.ByStatus, statusLabel)
	section("案件类型", st.ByCaseType, same)
	section("来源部门", st.ByDepartment, same)

	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "B", "C", 12)

	headers := []string{"案卷编号", "卷宗名称", "案件类型", "来源部门", "涉案人员", "状态", "导入时间"}
	row = 1
	for i, h := range headers {
		write(detailSheet, i+1, h)
	}
	for _, cf := range files {
		row++
		write(detailSheet, 1, cf.CaseNo)
		write(detailSheet, 2, cf.CaseName)
		write(detailSheet, 3, cf.CaseType)
		write(detailSheet, 4, cf.SourceDepartment)
		write(detailSheet, 5, cf.PersonName)
		write(detailSheet, 6, statusLabel(cf.Status))
		write(detailSheet, 7, cf.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	_ = f.SetColWidth(detailSheet, "A", "A", 24)
	_ = f.SetColWidth(detailSheet, "B", "B", 48)
	_ = f.SetColWidth(detailSheet, "C", "E", 16)
	_ = f.SetColWidth(detailSheet, "F", "F", 10)
	_ = f.SetColWidth(detailSheet, "G", "G", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("xlsx write: %w", err))
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(files),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func statusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}
