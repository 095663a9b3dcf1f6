package identity

import (
	"path/filepath"
	"testing"
)

func TestGetOrCreateDevice_CreatesOnFirstCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")

	d, err := GetOrCreateDevice(path, "")
	if err != nil {
		t.Fatalf("GetOrCreateDevice: %v", err)
	}
	if d.DeviceID == "" {
		t.Error("DeviceID is empty")
	}
	if d.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestGetOrCreateDevice_StableAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")

	first, err := GetOrCreateDevice(path, "")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	second, err := GetOrCreateDevice(path, "")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if first.DeviceID != second.DeviceID {
		t.Errorf("DeviceID changed across calls: %q != %q", first.DeviceID, second.DeviceID)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Error("CreatedAt should be immutable across calls")
	}
}

func TestGetOrCreateDevice_NicknameOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")

	d, err := GetOrCreateDevice(path, "my-laptop")
	if err != nil {
		t.Fatalf("GetOrCreateDevice: %v", err)
	}
	if d.Nickname != "my-laptop" {
		t.Errorf("Nickname = %q, want my-laptop", d.Nickname)
	}

	// Nickname stays what was set at creation even if a later call passes
	// a different override — only last_seen_at refreshes.
	d2, err := GetOrCreateDevice(path, "different-name")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if d2.Nickname != "my-laptop" {
		t.Errorf("Nickname changed on reload: %q, want my-laptop", d2.Nickname)
	}
}

func TestResolveNickname_FallsBackToHostname(t *testing.T) {
	n := resolveNickname("")
	if n == "" {
		t.Error("resolveNickname(\"\") returned empty string")
	}
}
