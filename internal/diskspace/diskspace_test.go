package diskspace_test

import (
	"path/filepath"
	"testing"

	"github.com/tesorrells/jellyfin-sync/internal/diskspace"
)

func TestFreeBytesOnTempDir(t *testing.T) {
	free, err := diskspace.FreeBytes(t.TempDir())
	if err != nil {
		t.Fatalf("FreeBytes failed: %v", err)
	}
	if free == 0 {
		t.Fatal("expected non-zero free space on temp volume")
	}
}

func TestHasFreeSpaceZeroFloorAlwaysPasses(t *testing.T) {
	ok, err := diskspace.HasFreeSpace(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("HasFreeSpace failed: %v", err)
	}
	if !ok {
		t.Fatal("zero floor must always pass")
	}
}

func TestHasFreeSpaceUnreachableFloor(t *testing.T) {
	// No test volume has an exabyte free.
	ok, err := diskspace.HasFreeSpace(t.TempDir(), 1<<30)
	if err != nil {
		t.Fatalf("HasFreeSpace failed: %v", err)
	}
	if ok {
		t.Fatal("expected unreachable floor to fail")
	}
}

func TestFreeBytesMissingPath(t *testing.T) {
	if _, err := diskspace.FreeBytes(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing path")
	}
}
