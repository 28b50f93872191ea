package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// JPEGBytes returns a minimal well-formed JPEG byte sequence wrapping the
// given payload, for tests that only need valid frame markers.
func JPEGBytes(payload []byte) []byte {
	data := []byte{0xff, 0xd8}
	data = append(data, payload...)
	return append(data, 0xff, 0xd9)
}

// WriteJPEG writes a marker-wrapped JPEG file at path, creating parent
// directories as needed.
func WriteJPEG(t testing.TB, path string, payload []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, JPEGBytes(payload), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
