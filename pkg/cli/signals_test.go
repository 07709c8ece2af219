package cli

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSetupSignalHandler_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SetupSignalHandler(parent)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with its parent")
	}
}

func TestSetupSignalHandler_SIGTERM(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping signal delivery in short mode")
	}

	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess: %v", err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after SIGTERM")
	}
}
