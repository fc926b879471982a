package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/imperium/internal/models"
)

func trade(id string, at time.Time) models.TradeRecord {
	return models.TradeRecord{
		ID:         id,
		Market:     "rome_forum",
		Resource:   "marble",
		Side:       models.SideBuy,
		Quantity:   10,
		UnitPrice:  20,
		Value:      200,
		PriceAfter: 20,
		ExecutedAt: at,
	}
}

func TestWriterAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	at := time.Date(2026, 3, 15, 9, 10, 0, 0, time.UTC)

	for _, id := range []string{"t1", "t2", "t3"} {
		if err := w.Append(trade(id, at)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	path := filepath.Join(dir, "trades-2026-03-15-09.jsonl.zst")
	recs, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("ReadJournal failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, id := range []string{"t1", "t2", "t3"} {
		if recs[i].ID != id {
			t.Errorf("record %d: expected %s, got %s", i, id, recs[i].ID)
		}
		if !recs[i].ExecutedAt.Equal(at) {
			t.Errorf("record %d: unexpected time %v", i, recs[i].ExecutedAt)
		}
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	first := time.Date(2026, 3, 15, 9, 59, 0, 0, time.UTC)
	second := first.Add(2 * time.Minute)

	if err := w.Append(trade("a", first)); err != nil {
		t.Fatal(err)
	}
	if err := w.Append(trade("b", second)); err != nil {
		t.Fatal(err)
	}
	// Back to the first hour: reopened in append mode as a new frame.
	if err := w.Append(trade("c", first)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 hourly files, got %d", len(entries))
	}

	nine, err := ReadJournal(filepath.Join(dir, "trades-2026-03-15-09.jsonl.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if len(nine) != 2 || nine[0].ID != "a" || nine[1].ID != "c" {
		t.Errorf("unexpected 09h records %+v", nine)
	}

	all, err := ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(all) != 3 || all[2].ID != "b" {
		t.Errorf("expected chronological file order, got %+v", all)
	}
}

func TestReadDirIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	recs, err := ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestReadJournalMissingFile(t *testing.T) {
	if _, err := ReadJournal(filepath.Join(t.TempDir(), "missing.jsonl.zst")); err == nil {
		t.Error("expected error for missing file")
	}
}
