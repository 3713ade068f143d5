package storage

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewKey(t *testing.T) {
	now := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	key := NewKey("case-files", ".PDF", now)

	pattern := regexp.MustCompile(`^case-files/2024/03/[0-9a-f]{32}\.pdf$`)
	if !pattern.MatchString(key) {
		t.Errorf("Unexpected key %q", key)
	}
	if NewKey("case-files", ".pdf", now) == key {
		t.Error("Expected keys to be unique")
	}
}

func TestFlatKey(t *testing.T) {
	key := FlatKey("templates", ".docx")
	if !regexp.MustCompile(`^templates/[0-9a-f]{32}\.docx$`).MatchString(key) {
		t.Errorf("Unexpected key %q", key)
	}
}

func TestLocalRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	ctx := context.Background()

	loc, err := store.Save(ctx, "case-files/2024/01/abc.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasPrefix(loc, root) || filepath.Base(loc) != "abc.txt" {
		t.Errorf("Unexpected location %q", loc)
	}

	data, err := ReadAll(ctx, store, loc)
	if err != nil || string(data) != "hello" {
		t.Fatalf("ReadAll = %q, %v", data, err)
	}

	if err := store.Delete(ctx, loc); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Open(ctx, loc); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, loc); err != nil {
		t.Errorf("Deleting a missing file should succeed, got %v", err)
	}
}

func TestLocalSaveHonoursCancel(t *testing.T) {
	store, _ := NewLocal(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Save(ctx, "a.txt", []byte("x")); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
