package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrison/specrunner/internal/models"
)

func TestNewFileLoggerCreatesRunLogAndSymlink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	fl, err := NewFileLoggerWithDirAndLevel(dir, "debug")
	if err != nil {
		t.Fatalf("NewFileLoggerWithDirAndLevel() error = %v", err)
	}
	defer fl.Close()

	if !strings.HasPrefix(filepath.Base(fl.Path()), "run-") {
		t.Errorf("unexpected run log name %q", fl.Path())
	}

	target, err := os.Readlink(filepath.Join(dir, "latest.log"))
	if err != nil {
		t.Fatalf("latest.log symlink missing: %v", err)
	}
	if target != filepath.Base(fl.Path()) {
		t.Errorf("latest.log -> %q, want %q", target, filepath.Base(fl.Path()))
	}
}

func TestFileLoggerFiltersAndWrites(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLoggerWithDirAndLevel(dir, "info")
	if err != nil {
		t.Fatal(err)
	}

	fl.LogDebug("hidden")
	fl.LogInfo("dispatched run 42")
	fl.LogError("sink unreadable")
	if err := fl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(fl.Path())
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if strings.Contains(content, "hidden") {
		t.Errorf("debug message written at info level")
	}
	for _, want := range []string{"=== specrunner log ===", "[INFO] dispatched run 42", "[ERROR] sink unreadable"} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}

	// Writes after Close are dropped.
	fl.LogError("late")
	if err := fl.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestFileLoggerResultSummary(t *testing.T) {
	fl, err := NewFileLoggerWithDirAndLevel(t.TempDir(), "info")
	if err != nil {
		t.Fatal(err)
	}

	set := models.NewFileResultSet("9")
	set.Put(&models.LineResult{RunID: "9", Line: 2, Status: models.StatusPassed})
	set.Put(&models.LineResult{
		RunID: "9", Line: 8, Status: models.StatusFailed, TestName: "UserTest#test_two",
		Exception: &models.ExceptionInfo{Message: "Expected: 1\n  Actual: 2"},
	})
	fl.LogResultSummary("/w/test/user_test.rb", set)
	fl.Close()

	data, err := os.ReadFile(fl.Path())
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	for _, want := range []string{
		"Results for /w/test/user_test.rb (run 9): 1 passed, 1 failed, 0 pending",
		"  FAILED line 8: UserTest#test_two",
		"    Expected: 1\n      Actual: 2",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
}
