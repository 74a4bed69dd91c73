package blob

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestWriteReadRemove(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if s.Dir() != filepath.Join(root, "image") {
		t.Fatalf("unexpected blob dir: %s", s.Dir())
	}

	id := uuid.NewString()
	if err := s.Write(id, []byte("pixels")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	got, err := s.Read(id)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(got) != "pixels" {
		t.Fatalf("unexpected blob: %q", got)
	}
	if ok, err := s.Exists(id); err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	ids, err := s.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if err := s.Remove(id); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), id)); !os.IsNotExist(err) {
		t.Fatalf("blob file still present: %v", err)
	}
	if _, err := s.Read(id); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := s.Remove(id); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist on second remove, got %v", err)
	}
}

func TestRejectsPathLikeIDs(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	for _, id := range []string{"../etc/passwd", "", "abc/def"} {
		if err := s.Write(id, []byte("x")); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("Write(%q) = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestListSkipsTempFiles(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), tmpPrefix+"123"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	ids, err := s.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
}
