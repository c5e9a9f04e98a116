package mcp

import (
	"testing"
)

func TestAcquireInstanceLock_SecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireInstanceLock(dir)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.Release()

	if _, err := AcquireInstanceLock(dir); err == nil {
		t.Fatal("expected second acquire to fail while the first holds the lock")
	}
}

func TestAcquireInstanceLock_ReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireInstanceLock(dir)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := AcquireInstanceLock(dir)
	if err != nil {
		t.Fatalf("second acquire after release: %v", err)
	}
	defer second.Release()
}

func TestInstanceLock_ReleaseNil(t *testing.T) {
	var l *InstanceLock
	if err := l.Release(); err != nil {
		t.Fatalf("Release on nil lock should be a no-op, got %v", err)
	}
}
