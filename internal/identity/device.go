// Package identity resolves the two stable identities Recall's data model
// keys events against: the local device (spec.md §3 Device, §4.1
// get_or_create_device) and the project a directory belongs to (§4.1
// detect_project).
package identity

import (
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"

	"github.com/boshu2/recall/internal/types"
)

// appID scopes machineid's hashed identifier to Recall so the same physical
// machine yields different protected IDs across unrelated applications.
const appID = "recall"

// configFilePerm matches the teacher's convention for user-config files:
// readable only by the owning user, since the device id is a stable
// identifier worth keeping out of shared-umask reach.
const configFilePerm = 0o600

// GetOrCreateDevice loads the device identity persisted at configPath,
// creating one on first call. Nickname and created_at are immutable once
// written (spec.md §3 "Created once; immutable thereafter"); only
// last_seen_at is refreshed.
func GetOrCreateDevice(configPath string, nicknameOverride string) (types.Device, error) {
	if existing, err := loadDeviceFile(configPath); err == nil {
		existing.LastSeenAt = time.Now().UTC()
		if err := saveDeviceFile(configPath, existing); err != nil {
			return types.Device{}, err
		}
		return existing, nil
	}

	now := time.Now().UTC()
	d := types.Device{
		DeviceID:   newDeviceID(),
		Nickname:   resolveNickname(nicknameOverride),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := saveDeviceFile(configPath, d); err != nil {
		return types.Device{}, err
	}
	return d, nil
}

// newDeviceID prefers a hardware-derived, per-application-salted id so the
// same machine is stable across reinstalls; machineid fails inside
// sandboxes and containers lacking /etc/machine-id, so a random uuid is the
// fallback (SPEC_FULL.md §1 domain-stack table).
func newDeviceID() string {
	id, err := machineid.ProtectedID(appID)
	if err == nil && id != "" {
		return id
	}
	return uuid.NewString()
}

// resolveNickname prefers an explicit override, else the platform hostname.
func resolveNickname(override string) string {
	if override != "" {
		return override
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown-device"
}
