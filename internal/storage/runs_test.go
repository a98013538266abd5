package storage

import (
	"fmt"
	"testing"
	"time"
)

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)

	created := time.Date(2024, 9, 2, 10, 30, 0, 123456000, time.UTC)
	want := Run{
		ID:         "run-1",
		CreatedAt:  created,
		Mode:       "sync",
		Status:     "needs_auth",
		Days:       "MON,WED",
		DurationMS: 842,
	}
	if err := s.SaveRun(want); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	got.CreatedAt = want.CreatedAt
	if got != want {
		t.Errorf("GetRun = %+v, want %+v", got, want)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetRun("missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveRun_DuplicateID(t *testing.T) {
	s := openTestStore(t)

	r := Run{ID: "dup", CreatedAt: time.Now(), Mode: "process", Status: "ok"}
	if err := s.SaveRun(r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(r); err == nil {
		t.Error("expected error saving a run id twice")
	}
}

func TestListRuns_NewestFirstWithPaging(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := Run{
			ID:        fmt.Sprintf("run-%02d", i),
			CreatedAt: base.Add(time.Duration(i) * 500 * time.Microsecond),
			Mode:      "process",
			Status:    "ok",
		}
		if err := s.SaveRun(r); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	page, err := s.ListRuns(2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d runs, want 2", len(page))
	}
	if page[0].ID != "run-04" || page[1].ID != "run-03" {
		t.Errorf("page = [%s %s], want [run-04 run-03]", page[0].ID, page[1].ID)
	}

	rest, err := s.ListRuns(10, 2)
	if err != nil {
		t.Fatalf("ListRuns offset: %v", err)
	}
	if len(rest) != 3 || rest[2].ID != "run-00" {
		t.Errorf("rest = %+v, want 3 runs ending with run-00", rest)
	}
}

func TestListRuns_Empty(t *testing.T) {
	s := openTestStore(t)

	runs, err := s.ListRuns(20, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs, want 0", len(runs))
	}
}
