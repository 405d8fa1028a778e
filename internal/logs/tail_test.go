package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mivvo/internal/logs"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mivvod.log")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\nfour\n")

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "three" || lines[1] != "four" {
		t.Fatalf("lines = %v, want [three four]", lines)
	}
	if offset == 0 {
		t.Fatal("offset should point past the read lines")
	}
}

func TestLastShortFile(t *testing.T) {
	path := writeLog(t, "only\n")

	lines, _, err := logs.Last(path, 10)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if len(lines) != 1 || lines[0] != "only" {
		t.Fatalf("lines = %v, want [only]", lines)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if len(lines) != 0 || offset != 0 {
		t.Fatalf("lines=%v offset=%d, want empty", lines, offset)
	}
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	path := writeLog(t, "old\n")

	_, offset, err := logs.Last(path, 0)
	if err != nil {
		t.Fatalf("last: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 4)
	go func() {
		_ = logs.Follow(ctx, path, offset, func(line string) { got <- line })
	}()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := file.WriteString("fresh\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	file.Close()

	select {
	case line := <-got:
		if line != "fresh" {
			t.Fatalf("line = %q, want fresh", line)
		}
	case <-ctx.Done():
		t.Fatal("follow never delivered the appended line")
	}
}
