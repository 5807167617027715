//go:build linux

package fault

import (
	"errors"
	"syscall"
	"testing"
	"unsafe"
)

// An unmapped page read is a real SIGSEGV delivered by the kernel.
func TestGuarded_UnmappedReadIsFault(t *testing.T) {
	page, err := syscall.Mmap(-1, 0, syscall.Getpagesize(), syscall.PROT_READ, syscall.MAP_ANON|syscall.MAP_PRIVATE)
	if err != nil {
		t.Skipf("mmap unavailable: %v", err)
	}
	addr := unsafe.Pointer(&page[0])
	if err := syscall.Munmap(page); err != nil {
		t.Fatalf("munmap: %v", err)
	}
	var g Guard
	_, err = Guarded(&g, "read", func() (byte, error) {
		return *(*byte)(addr), nil
	})
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("expected fault, got %v", err)
	}
	if f.Addr == 0 {
		t.Fatalf("expected fault address, got %+v", f)
	}
}
