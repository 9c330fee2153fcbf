//go:build linux

package action

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/llbuild2/llbuild2-go/cas"
	"github.com/llbuild2/llbuild2-go/filetree"
)

func TestExecutorBasicSuccess(t *testing.T) {
	ctx := context.Background()
	store := cas.NewMemStore()
	ex := NewExecutor(store)

	req := ActionExecutionRequest{
		Spec: ActionSpec{
			Arguments: []string{"/bin/sh", "-c", "echo hello > out.txt"},
		},
		Outputs: []ActionOutput{{Path: "out.txt", Type: filetree.FILETYPE_PLAINFILE}},
	}

	result, err := ex.Execute(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ExitReason.IsSuccess() {
		t.Fatalf("expected success, got %v", result.ExitReason)
	}
	if result.OutputTreeID == cas.NilDataID {
		t.Fatal("expected a populated output tree")
	}

	outRoot := t.TempDir()
	if err := filetree.Export(ctx, store, result.OutputTreeID, outRoot); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(outRoot, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("unexpected output content: %q", data)
	}
}

func TestExecutorNonZeroExit(t *testing.T) {
	ctx := context.Background()
	store := cas.NewMemStore()
	ex := NewExecutor(store)

	req := ActionExecutionRequest{
		Spec: ActionSpec{Arguments: []string{"/bin/sh", "-c", "exit 3"}},
	}

	_, err := ex.Execute(ctx, req)
	execErr, ok := err.(ActionExecutionError)
	if !ok {
		t.Fatalf("expected ActionExecutionError, got %T: %v", err, err)
	}
	if execErr.Reason.ShellExitCode() != 3 {
		t.Fatalf("expected shell exit code 3, got %d", execErr.Reason.ShellExitCode())
	}
}

// TestExecutorCancellation is scenario S6: a deadline well short of the
// child's own runtime must tear it down and report failure within a
// bounded grace period around the deadline.
func TestExecutorCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	store := cas.NewMemStore()
	ex := NewExecutor(store, ExecutorOptionTeardownSequence([]TeardownStep{
		{Signal: 15 /* SIGTERM */, Grace: 50 * time.Millisecond},
	}))

	req := ActionExecutionRequest{
		Spec: ActionSpec{Arguments: []string{"/bin/sh", "-c", "sleep 86400"}},
	}

	start := time.Now()
	_, err := ex.Execute(ctx, req)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected the action to fail under cancellation")
	}
	if _, ok := err.(ActionExecutionError); !ok {
		t.Fatalf("expected ActionExecutionError, got %T: %v", err, err)
	}
	// deadline (100ms) + one teardown grace window (50ms), with slack.
	if elapsed > 2*time.Second {
		t.Fatalf("expected the child to be reaped promptly after the deadline, took %v", elapsed)
	}
}

func TestActionSpecFingerprintStable(t *testing.T) {
	a := ActionSpec{
		Arguments:   []string{"echo", "hi"},
		Environment: map[string][]string{"B": {"2"}, "A": {"1"}},
	}
	b := ActionSpec{
		Arguments:   []string{"echo", "hi"},
		Environment: map[string][]string{"A": {"1"}, "B": {"2"}},
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("expected equal specs (modulo map iteration order) to fingerprint equal")
	}

	c := a
	c.Arguments = []string{"echo", "bye"}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("expected different arguments to fingerprint differently")
	}
}
