// Package config holds the process-wide, read-only configuration snapshot
// consumed by discovery and OBEX header construction (spec.md 2.6, 6).
//
// Loading follows the teacher's pattern (server/config.go's
// parseJSONConfig): a plain encoding/json decode into a struct, with no
// external config library pulled in for it — this is the ambient
// configuration concern carried regardless of the CLI/GUI front end being
// out of scope.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// PeerIDLen is the fixed width of the stable peer identifier (spec.md 3).
const PeerIDLen = 8

// DeviceTypeLen is the fixed width of the device-type tag (spec.md 3).
const DeviceTypeLen = 3

// Snapshot is the recognized configuration fields, immutable once built.
type Snapshot struct {
	peerID      [PeerIDLen]byte
	deviceType  [DeviceTypeLen]byte
	hostname    string
	downloadDir string
}

// PeerID returns the 8-byte stable peer identifier.
func (s *Snapshot) PeerID() [PeerIDLen]byte { return s.peerID }

// DeviceType returns the 3-character device-type tag.
func (s *Snapshot) DeviceType() [DeviceTypeLen]byte { return s.deviceType }

// Hostname returns the configured hostname used in CONNECT/discovery headers.
func (s *Snapshot) Hostname() string { return s.hostname }

// DownloadDir returns the directory received files are written under.
func (s *Snapshot) DownloadDir() string { return s.downloadDir }

// fileFormat mirrors the on-disk JSON shape; kept distinct from Snapshot so
// the in-memory type stays immutable and the wire/file format can evolve
// independently, the same separation server/config.go draws between Config
// and the values it feeds into the rest of the program.
type fileFormat struct {
	PeerID      string `json:"peer_id"`
	DeviceType  string `json:"device_type"`
	Hostname    string `json:"hostname"`
	DownloadDir string `json:"download_dir"`
}

// New builds a Snapshot directly from already-validated fields. DeviceType
// longer than DeviceTypeLen is truncated; shorter is right-padded with
// spaces, matching the fixed-width wire encoding in spec.md 3.
func New(peerID [PeerIDLen]byte, deviceType string, hostname, downloadDir string) *Snapshot {
	return &Snapshot{
		peerID:      peerID,
		deviceType:  padDeviceType(deviceType),
		hostname:    hostname,
		downloadDir: downloadDir,
	}
}

func padDeviceType(s string) [DeviceTypeLen]byte {
	var out [DeviceTypeLen]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], s)
	return out
}

// Load reads a JSON configuration file into a Snapshot. Config or startup
// errors are fatal to the process per spec.md 7, so the caller is expected
// to log.Fatal on a non-nil error rather than recover from it.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "config.Load: open")
	}
	defer f.Close()

	var ff fileFormat
	if err := json.NewDecoder(f).Decode(&ff); err != nil {
		return nil, errors.Wrap(err, "config.Load: decode")
	}

	if len(ff.PeerID) != PeerIDLen {
		return nil, errors.Errorf("config.Load: peer_id must be exactly %d bytes, got %d", PeerIDLen, len(ff.PeerID))
	}

	var peerID [PeerIDLen]byte
	copy(peerID[:], ff.PeerID)

	return New(peerID, ff.DeviceType, ff.Hostname, ff.DownloadDir), nil
}

// DeviceTypeString returns the device-type tag with trailing padding spaces
// trimmed, for display purposes.
func DeviceTypeString(dt [DeviceTypeLen]byte) string {
	end := len(dt)
	for end > 0 && dt[end-1] == ' ' {
		end--
	}
	return string(dt[:end])
}
