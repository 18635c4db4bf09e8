package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := testDB(t)

	id, err := db.StartRun("grp/book")
	if err != nil {
		t.Fatal(err)
	}

	run, err := db.GetRun(id)
	if err != nil {
		t.Fatal(err)
	}
	if run == nil || run.Namespace != "grp/book" || run.FinishedAt != nil {
		t.Fatalf("open run = %+v", run)
	}

	if err := db.RecordFailure(id, "docs/book/a.md", errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishRun(id, 4, 1, nil); err != nil {
		t.Fatal(err)
	}

	run, err = db.GetRun(id)
	if err != nil {
		t.Fatal(err)
	}
	if run.FinishedAt == nil || run.Documents != 4 || run.Failures != 1 || run.Error != "" {
		t.Errorf("finished run = %+v", run)
	}

	failures, err := db.ListFailures(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || failures[0].Path != "docs/book/a.md" || failures[0].Error != "boom" {
		t.Errorf("failures = %+v", failures)
	}
}

func TestFinishRun_Error(t *testing.T) {
	db := testDB(t)

	id, err := db.StartRun("grp/book")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.FinishRun(id, 0, 0, errors.New("metadata unavailable")); err != nil {
		t.Fatal(err)
	}
	run, err := db.GetRun(id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Error != "metadata unavailable" {
		t.Errorf("error = %q", run.Error)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := testDB(t)

	var ids []string
	for _, ns := range []string{"a/one", "a/two", "a/three"} {
		id, err := db.StartRun(ns)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("order = %s, %s", runs[0].Namespace, runs[1].Namespace)
	}
}

func TestGetRun_Missing(t *testing.T) {
	db := testDB(t)

	run, err := db.GetRun("nope")
	if err != nil {
		t.Fatal(err)
	}
	if run != nil {
		t.Errorf("run = %+v, want nil", run)
	}
}
