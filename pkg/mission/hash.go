package mission

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

// ComputeAuditHash fingerprints a mission's identity fields. It depends only
// on its arguments, so the hash can be recomputed from a stored record to
// check it was not altered.
func ComputeAuditHash(id string, missionType taxonomy.MissionType, createdAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(id))
	h.Write([]byte{'|'})
	h.Write([]byte(missionType))
	h.Write([]byte{'|'})
	h.Write([]byte(createdAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyAuditHash recomputes the hash of m and compares it to the stored one.
func VerifyAuditHash(m *Mission) bool {
	return m.AuditHash != "" && m.AuditHash == ComputeAuditHash(m.ID, m.Type, m.CreatedAt)
}

// NewID returns a lexically sortable mission or task id.
func NewID() string {
	return ulid.Make().String()
}
