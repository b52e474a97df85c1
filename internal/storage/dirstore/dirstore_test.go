package dirstore

import (
	"errors"
	"testing"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadDoc(t *testing.T) {
	s := New(t.TempDir(), "widget")

	in := doc{Name: "a", Count: 3}
	if err := s.WriteDoc("w1", "meta.json", in); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out doc
	if err := s.ReadDoc("w1", "meta.json", &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestReadDoc_Missing(t *testing.T) {
	s := New(t.TempDir(), "widget")

	var out doc
	err := s.ReadDoc("nope", "meta.json", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIDs_SortedAndEmpty(t *testing.T) {
	s := New(t.TempDir(), "widget")

	ids, err := s.IDs()
	if err != nil {
		t.Fatalf("ids on empty root: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no ids, got %v", ids)
	}

	for _, id := range []string{"b", "a", "c"} {
		if err := s.WriteDoc(id, "meta.json", doc{Name: id}); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}

	ids, err = s.IDs()
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestAppendLines(t *testing.T) {
	s := New(t.TempDir(), "widget")

	for i := 0; i < 3; i++ {
		if err := s.Append("w1", "log.jsonl", doc{Count: i}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	lines, err := Lines[doc](s, "w1", "log.jsonl")
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if l.Count != i {
			t.Errorf("line %d count = %d", i, l.Count)
		}
	}
}

func TestLines_MissingFile(t *testing.T) {
	s := New(t.TempDir(), "widget")

	lines, err := Lines[doc](s, "w1", "log.jsonl")
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if lines != nil {
		t.Errorf("expected nil for missing file, got %v", lines)
	}
}

func TestRemove(t *testing.T) {
	s := New(t.TempDir(), "widget")

	if err := s.WriteDoc("w1", "meta.json", doc{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Remove("w1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	var out doc
	if err := s.ReadDoc("w1", "meta.json", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
}
