package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stemforge/stem-forge/internal/domain"
	"github.com/stemforge/stem-forge/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const pack = `
- id: optics-hydra
  name: The Optics Hydra
  subject: physics
  difficulty: expert
  xpReward: 400
  unlocked: true
  phases:
    - id: "1"
      name: Refraction
      questions:
        - id: q1
          question: Index of refraction of vacuum?
          type: calculation
          correctAnswer: "1"
          points: 100
`

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte(pack), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "validate", good)
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 challenges, 1 questions OK") {
		t.Fatalf("unexpected output: %s", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte(strings.Replace(pack, "points: 100", "points: 0", 1)), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "validate", bad)
	if err == nil {
		t.Fatalf("expected validation failure, got output: %s", out)
	}
	if !strings.Contains(out, "optics-hydra") {
		t.Fatalf("expected problem to name the challenge, got: %s", out)
	}
}

func TestChallengesCommandBuiltin(t *testing.T) {
	out, err := run(t, "challenges")
	if err != nil {
		t.Fatalf("challenges failed: %v", err)
	}
	for _, want := range []string{"chemistry-titan", "islamic-guardian", "quantum-dragon", "locked"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTodayCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forge.db")
	repo, err := store.NewSQLite(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	rec := domain.DailyRecord{Date: "2026-03-14", CompletedWorkSessions: 2, TotalFocusMinutes: 50, CompletedTasks: []string{"vectors"}}
	if err := repo.SaveDailyRecord(context.Background(), "anon_x", rec); err != nil {
		t.Fatal(err)
	}
	repo.Close()

	out, err := run(t, "today", "--db", dbPath, "--user", "anon_x", "--date", "2026-03-14")
	if err != nil {
		t.Fatalf("today failed: %v", err)
	}
	if !strings.Contains(out, "2 work sessions, 50 focus minutes") || !strings.Contains(out, "- vectors") {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := run(t, "today", "--db", dbPath); err == nil {
		t.Fatal("expected --user to be required")
	}
}
