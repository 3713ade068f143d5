package classification

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/internal/llm"
	"github.com/JustJay7/case-archive/pkg/logger"
)

func setup(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return NewService(db, logger.NewNop()), db
}

var seq int

func create(t *testing.T, db *gorm.DB, status, l1, l2, l3 string) database.CaseFile {
	t.Helper()
	seq++
	cf := database.CaseFile{
		CaseNo:               fmt.Sprintf("CF%04d", seq),
		Status:               status,
		ClassificationLevel1: l1,
		ClassificationLevel2: l2,
		ClassificationLevel3: l3,
	}
	if err := db.Create(&cf).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	return cf
}

func TestTree(t *testing.T) {
	svc, db := setup(t)
	done := database.StatusCompleted

	create(t, db, done, "违纪", "酒驾", "醉驾")
	create(t, db, done, "违纪", "酒驾", "醉驾")
	create(t, db, done, "违纪", "酒驾", "")
	create(t, db, done, "违纪", "私自外出", "")
	create(t, db, done, "事故", "", "")
	create(t, db, done, "", "", "")
	create(t, db, database.StatusPending, "违纪", "酒驾", "醉驾")

	tree, err := svc.Tree(context.Background())
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("roots = %d, want 2", len(tree))
	}

	byName := map[string]*Node{}
	for _, n := range tree {
		byName[n.Name] = n
	}
	discipline := byName["违纪"]
	if discipline == nil || discipline.Count != 4 || discipline.ID != "l1_违纪" {
		t.Fatalf("违纪 node = %+v", discipline)
	}
	if len(discipline.Children) != 2 {
		t.Fatalf("违纪 children = %d", len(discipline.Children))
	}
	var drunk *Node
	for _, c := range discipline.Children {
		if c.Name == "酒驾" {
			drunk = c
		}
	}
	if drunk == nil || drunk.Count != 3 || drunk.ID != "l2_违纪_酒驾" {
		t.Fatalf("酒驾 node = %+v", drunk)
	}
	if len(drunk.Children) != 1 || drunk.Children[0].Count != 2 || drunk.Children[0].ID != "l3_违纪_酒驾_醉驾" {
		t.Errorf("醉驾 node = %+v", drunk.Children)
	}
	if accident := byName["事故"]; accident == nil || accident.Count != 1 || len(accident.Children) != 0 {
		t.Errorf("事故 node = %+v", accident)
	}
}

func TestUnconfirmed(t *testing.T) {
	svc, db := setup(t)
	done := database.StatusCompleted

	create(t, db, done, "", "", "")
	create(t, db, done, "违纪", "", "")
	create(t, db, done, "违纪", "酒驾", "")
	create(t, db, database.StatusPending, "", "", "")

	items, total, err := svc.Unconfirmed(context.Background(), database.NewPage(1, 20))
	if err != nil {
		t.Fatalf("Unconfirmed: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	for _, it := range items {
		want := 0
		if it.AutoClassification.Level1 != "" {
			want = 75
		}
		if it.Confidence != want {
			t.Errorf("confidence = %d, want %d", it.Confidence, want)
		}
		if it.ManualClassification != nil {
			t.Error("manualClassification should be null")
		}
	}
}

func TestConfirmAndBatch(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	a := create(t, db, database.StatusCompleted, "", "", "")
	b := create(t, db, database.StatusCompleted, "", "", "")

	if err := svc.Confirm(ctx, a.ID, llm.Classification{Level1: "违纪", Level2: "酒驾"}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	var got database.CaseFile
	db.First(&got, a.ID)
	if got.ClassificationLevel1 != "违纪" || got.ClassificationLevel2 != "酒驾" {
		t.Errorf("after confirm: %+v", got)
	}

	if err := svc.Confirm(ctx, 9999, llm.Classification{Level1: "x"}); !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("missing confirm error = %v", err)
	}

	n, err := svc.BatchConfirm(ctx, []uint{a.ID, b.ID, 9999}, llm.Classification{Level1: "事故"})
	if err != nil {
		t.Fatalf("BatchConfirm: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	if _, err := svc.BatchConfirm(ctx, nil, llm.Classification{}); err == nil {
		t.Error("expected error for empty id list")
	}
}

func TestParseNodeID(t *testing.T) {
	tests := []struct {
		id   string
		want []string
		ok   bool
	}{
		{"l1_违纪", []string{"违纪"}, true},
		{"l2_违纪_酒驾", []string{"违纪", "酒驾"}, true},
		{"l3_违纪_酒驾_醉驾", []string{"违纪", "酒驾", "醉驾"}, true},
		{"l2_违纪", nil, false},
		{"x1_a", nil, false},
		{"l1_", nil, false},
		{"l2_A%5FB_C", []string{"A_B", "C"}, true},
		{"l2_A_B_C", nil, false},
		{"l1_100%25", []string{"100%"}, true},
		{"l1_%zz", nil, false},
	}
	for _, tt := range tests {
		got, err := ParseNodeID(tt.id)
		if (err == nil) != tt.ok {
			t.Errorf("ParseNodeID(%q) err = %v", tt.id, err)
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("ParseNodeID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestNodeIDWithUnderscores(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	create(t, db, database.StatusCompleted, "A_B", "C", "")
	create(t, db, database.StatusCompleted, "A", "B_C", "")

	tree, err := svc.Tree(ctx)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	for _, n1 := range tree {
		for _, n2 := range n1.Children {
			levels, err := ParseNodeID(n2.ID)
			if err != nil {
				t.Fatalf("ParseNodeID(%q): %v", n2.ID, err)
			}
			if levels[0] != n1.Name || levels[1] != n2.Name {
				t.Errorf("%q parsed as %v, want [%s %s]", n2.ID, levels, n1.Name, n2.Name)
			}
			_, total, err := svc.CaseFiles(ctx, n2.ID, database.NewPage(1, 20))
			if err != nil || total != 1 {
				t.Errorf("CaseFiles(%q) total = %d err = %v", n2.ID, total, err)
			}
		}
	}
	if got := NodeID("A_B", "C"); got != "l2_A%5FB_C" {
		t.Errorf("NodeID = %q", got)
	}
}

func TestCaseFilesByNode(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	done := database.StatusCompleted

	create(t, db, done, "违纪", "酒驾", "醉驾")
	create(t, db, done, "违纪", "酒驾", "")
	create(t, db, done, "违纪", "私自外出", "")
	create(t, db, database.StatusPending, "违纪", "酒驾", "")

	tests := map[string]int64{
		"l1_违纪":       3,
		"l2_违纪_酒驾":    2,
		"l3_违纪_酒驾_醉驾": 1,
	}
	for id, want := range tests {
		_, total, err := svc.CaseFiles(ctx, id, database.NewPage(1, 20))
		if err != nil {
			t.Fatalf("CaseFiles(%q): %v", id, err)
		}
		if total != want {
			t.Errorf("CaseFiles(%q) total = %d, want %d", id, total, want)
		}
	}
}
