package users

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/JustJay7/case-archive/internal/apperror"
	"github.com/JustJay7/case-archive/internal/auth"
	"github.com/JustJay7/case-archive/internal/database"
	"github.com/JustJay7/case-archive/pkg/logger"
)

const strong = "Str0ng!Pass"

func setup(t *testing.T) (*Service, *gorm.DB, *auth.KeyManager) {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	keys, err := auth.LoadOrCreateKeys(t.TempDir())
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	policy := auth.PasswordPolicy{MinLength: 8, NeedUpper: true, NeedLower: true, NeedDigit: true, NeedSpecial: true}
	return NewService(db, keys, policy, logger.NewNop()), db, keys
}

func TestCreate(t *testing.T) {
	svc, db, keys := setup(t)
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateRequest{Username: "zhang", Password: strong, RealName: "张三", Department: "保卫处"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if v.Role != database.RoleUser || v.Status != 1 {
		t.Errorf("view = %+v", v)
	}
	var stored database.User
	db.First(&stored, v.ID)
	if !auth.CheckPassword(stored.PasswordHash, strong) {
		t.Error("password hash does not match")
	}

	cipher, err := keys.EncryptPassword(strong)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := svc.Create(ctx, CreateRequest{Username: "li", Password: cipher, Encrypted: true, Role: database.RoleAdmin}); err != nil {
		t.Fatalf("Create encrypted: %v", err)
	}

	tests := []struct {
		name string
		req  CreateRequest
		code apperror.Code
	}{
		{"duplicate", CreateRequest{Username: "zhang", Password: strong}, apperror.CodeAlreadyExists},
		{"bad role", CreateRequest{Username: "wang", Password: strong, Role: "root"}, apperror.CodeInvalidParameter},
		{"weak password", CreateRequest{Username: "wang", Password: "password"}, apperror.CodeValidationError},
		{"bad ciphertext", CreateRequest{Username: "wang", Password: "bm90LXJzYQ==", Encrypted: true}, apperror.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.req); !apperror.Is(err, tt.code) {
				t.Errorf("error = %v, want code %d", err, tt.code)
			}
		})
	}
}

func TestListFilters(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	for _, req := range []CreateRequest{
		{Username: "admin2", Password: strong, Role: database.RoleAdmin, Department: "机关"},
		{Username: "user1", Password: strong, Department: "一营"},
		{Username: "user2", Password: strong, Department: "二营"},
	} {
		if _, err := svc.Create(ctx, req); err != nil {
			t.Fatalf("Create %s: %v", req.Username, err)
		}
	}

	_, total, err := svc.List(ctx, Filter{Keyword: "营"}, database.NewPage(1, 20))
	if err != nil || total != 2 {
		t.Errorf("keyword total = %d, %v", total, err)
	}
	_, total, _ = svc.List(ctx, Filter{Role: database.RoleAdmin}, database.NewPage(1, 20))
	if total != 1 {
		t.Errorf("role total = %d", total)
	}
	active := 1
	items, total, _ := svc.List(ctx, Filter{Status: &active}, database.NewPage(1, 2))
	if total != 3 || len(items) != 2 {
		t.Errorf("status total = %d items = %d", total, len(items))
	}
}

func TestSelfProtection(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	me, err := svc.Create(ctx, CreateRequest{Username: "boss", Password: strong, Role: database.RoleAdmin})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	actor := auth.Principal{UserID: me.ID, Username: me.Username, Role: me.Role}

	disabled := 0
	if _, err := svc.Update(ctx, actor, me.ID, UpdateRequest{Status: &disabled}); !apperror.Is(err, apperror.CodeBadRequest) {
		t.Errorf("disable self error = %v", err)
	}
	role := database.RoleUser
	if _, err := svc.Update(ctx, actor, me.ID, UpdateRequest{Role: &role}); !apperror.Is(err, apperror.CodeBadRequest) {
		t.Errorf("change own role error = %v", err)
	}
	if err := svc.Delete(ctx, actor, me.ID); !apperror.Is(err, apperror.CodeBadRequest) {
		t.Errorf("delete self error = %v", err)
	}
	if err := svc.SetStatus(ctx, actor, me.ID, 0); !apperror.Is(err, apperror.CodeBadRequest) {
		t.Errorf("status self error = %v", err)
	}

	name := "新名字"
	v, err := svc.Update(ctx, actor, me.ID, UpdateRequest{RealName: &name})
	if err != nil || v.RealName != "新名字" {
		t.Errorf("update own name = %+v, %v", v, err)
	}
}

func TestUpdateDeleteOthers(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	actor := auth.Principal{UserID: 999, Username: "root", Role: database.RoleAdmin}

	u, err := svc.Create(ctx, CreateRequest{Username: "member", Password: strong})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	role := database.RoleAdmin
	v, err := svc.Update(ctx, actor, u.ID, UpdateRequest{Role: &role})
	if err != nil || v.Role != database.RoleAdmin {
		t.Errorf("update role = %+v, %v", v, err)
	}

	if err := svc.SetStatus(ctx, actor, u.ID, 0); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if got, _ := svc.Get(ctx, u.ID); got.Status != 0 {
		t.Errorf("status = %d", got.Status)
	}
	if err := svc.SetStatus(ctx, actor, u.ID, 1); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	if err := svc.Delete(ctx, actor, u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get after soft delete: %v", err)
	}
	if got.Status != 0 {
		t.Errorf("status after delete = %d", got.Status)
	}

	if _, err := svc.Get(ctx, 12345); !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("missing user error = %v", err)
	}
}

func TestResetPassword(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateRequest{Username: "member", Password: strong})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.ResetPassword(ctx, u.ID, PasswordRequest{Password: "short"}); !apperror.Is(err, apperror.CodeValidationError) {
		t.Errorf("weak reset error = %v", err)
	}
	if err := svc.ResetPassword(ctx, u.ID, PasswordRequest{Password: "N3w#Secret"}); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	var stored database.User
	db.First(&stored, u.ID)
	if !auth.CheckPassword(stored.PasswordHash, "N3w#Secret") {
		t.Error("new password not stored")
	}
}
