package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boshu2/recall/internal/types"
)

// deviceFile is the on-disk shape of the device identity config described
// in spec.md §6: "{device_id, nickname, created_at}". LastSeenAt is kept
// in the same file for convenience even though the spec's literal external
// interface only names the first three fields.
type deviceFile struct {
	DeviceID   string    `json:"device_id"`
	Nickname   string    `json:"nickname"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func loadDeviceFile(path string) (types.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Device{}, err
	}
	var f deviceFile
	if err := json.Unmarshal(data, &f); err != nil {
		return types.Device{}, err
	}
	return types.Device{
		DeviceID:   f.DeviceID,
		Nickname:   f.Nickname,
		CreatedAt:  f.CreatedAt,
		LastSeenAt: f.LastSeenAt,
	}, nil
}

func saveDeviceFile(path string, d types.Device) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f := deviceFile{
		DeviceID:   d.DeviceID,
		Nickname:   d.Nickname,
		CreatedAt:  d.CreatedAt,
		LastSeenAt: d.LastSeenAt,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, configFilePerm)
}
