package burn_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"parburn/internal/burn"
	"parburn/internal/services"
	"parburn/internal/testsupport"
)

func TestGrowisofsBuildsCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := &testsupport.FakeExecutor{}
	prompted := 0
	burner := burn.NewGrowisofs(cfg, exec, testsupport.NewLogger(t), func(string) { prompted++ })

	req := burn.Request{Device: "/dev/sr0", Label: "docs-0001-001", Dir: "/tmp/disc"}
	if err := burner.Burn(context.Background(), req); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if prompted != 1 {
		t.Fatalf("prompted %d times", prompted)
	}

	cmd := exec.Commands[0].Command
	rendered := cmd.String()
	for _, want := range []string{"-Z /dev/sr0", "-R", "-J", "-V docs-0001-001", "/tmp/disc"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("command %q missing %q", rendered, want)
		}
	}
}

func TestGrowisofsFailureAdvisesReverify(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := &testsupport.FakeExecutor{Err: errors.New("exit status 1")}
	burner := burn.NewGrowisofs(cfg, exec, testsupport.NewLogger(t), nil)

	ctx := services.WithRunID(context.Background(), "0f95c1aa")
	err := burner.Burn(ctx, burn.Request{Device: "/dev/sr0", Label: "x", Dir: "/d"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("want external tool error, got %v", err)
	}
	// A failed burn is not retried blindly; the operator gets the exact
	// command, the run to re-verify, and a re-verify instruction instead.
	if !strings.Contains(err.Error(), "re-verify") || !strings.Contains(err.Error(), "command was:") {
		t.Fatalf("error lacks operator guidance: %v", err)
	}
	if !strings.Contains(err.Error(), "run 0f95c1aa") {
		t.Fatalf("error does not identify the run: %v", err)
	}
}

func TestRecorderWritesNothing(t *testing.T) {
	recorder := burn.NewRecorder(testsupport.NewLogger(t))
	req := burn.Request{Device: "/dev/sr0", Label: "docs-0001-001"}
	if err := recorder.Burn(context.Background(), req); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if len(recorder.Requests) != 1 || recorder.Requests[0].Label != "docs-0001-001" {
		t.Fatalf("requests = %+v", recorder.Requests)
	}
}
