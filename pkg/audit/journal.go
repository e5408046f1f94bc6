// Package audit keeps an append-only, hash-chained record of everything the
// orchestrator decides. Each record's hash covers its predecessor's hash, so
// editing or dropping a record breaks Verify for every later one.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
)

// Record kinds written by the orchestrator.
const (
	KindMissionCreated    = "mission.created"
	KindMissionPlanned    = "mission.planned"
	KindMissionTransition = "mission.transition"
	KindViolation         = "policy.violation"
	KindApprovalCreated   = "approval.created"
	KindApprovalResolved  = "approval.resolved"
	KindAllocation        = "allocation"
	KindTask              = "task"
	KindWarning           = "warning"
)

// Record is one journal entry.
type Record struct {
	Seq       uint64            `json:"seq"`
	MissionID string            `json:"missionId"`
	Kind      string            `json:"kind"`
	Actor     string            `json:"actor"`
	Summary   string            `json:"summary"`
	Fields    map[string]string `json:"fields,omitempty"`
	At        time.Time         `json:"at"`
	PrevHash  string            `json:"prevHash"`
	Hash      string            `json:"hash"`
}

// Journal is an append-only audit store.
type Journal interface {
	// Append assigns Seq, PrevHash and Hash and stores the record.
	Append(ctx context.Context, rec Record) (Record, error)
	// List returns the records for one mission in sequence order. An empty
	// mission id lists everything.
	List(ctx context.Context, missionID string) ([]Record, error)
	// Verify walks the whole chain.
	Verify(ctx context.Context) error
	Close() error
}

func encodeFields(fields map[string]string) string {
	if len(fields) == 0 {
		return "{}"
	}
	// json.Marshal sorts map keys, which keeps the encoding canonical.
	data, _ := json.Marshal(fields)
	return string(data)
}

// ChainHash computes the hash linking rec to prevHash.
func ChainHash(rec Record, prevHash string) string {
	h := sha256.New()
	for _, part := range []string{
		prevHash,
		strconv.FormatUint(rec.Seq, 10),
		rec.MissionID,
		rec.Kind,
		rec.Actor,
		rec.Summary,
		encodeFields(rec.Fields),
		strconv.FormatInt(rec.At.UTC().UnixNano(), 10),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// verifyChain checks a full, ordered chain.
func verifyChain(records []Record) error {
	prev := ""
	for i, rec := range records {
		want := uint64(i + 1)
		if rec.Seq != want {
			return owerr.Newf(owerr.ErrCodeIntegrity, "audit sequence gap: expected %d got %d", want, rec.Seq)
		}
		if rec.PrevHash != prev {
			return owerr.Newf(owerr.ErrCodeIntegrity, "audit prev hash mismatch at seq %d", rec.Seq)
		}
		if ChainHash(rec, prev) != rec.Hash {
			return owerr.Newf(owerr.ErrCodeIntegrity, "audit hash mismatch at seq %d", rec.Seq).
				WithContext("mission_id", rec.MissionID)
		}
		prev = rec.Hash
	}
	return nil
}

func cloneRecord(r Record) Record {
	if r.Fields != nil {
		fields := make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		r.Fields = fields
	}
	return r
}

// MemoryJournal keeps the chain in process memory.
type MemoryJournal struct {
	mu      sync.RWMutex
	records []Record
	now     func() time.Time
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{now: time.Now}
}

// Append implements Journal.
func (j *MemoryJournal) Append(_ context.Context, rec Record) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec = cloneRecord(rec)
	if rec.At.IsZero() {
		rec.At = j.now()
	}
	rec.Seq = uint64(len(j.records) + 1)
	if n := len(j.records); n > 0 {
		rec.PrevHash = j.records[n-1].Hash
	} else {
		rec.PrevHash = ""
	}
	rec.Hash = ChainHash(rec, rec.PrevHash)
	j.records = append(j.records, rec)
	return cloneRecord(rec), nil
}

// List implements Journal.
func (j *MemoryJournal) List(_ context.Context, missionID string) ([]Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Record
	for _, rec := range j.records {
		if missionID == "" || rec.MissionID == missionID {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// Verify implements Journal.
func (j *MemoryJournal) Verify(_ context.Context) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return verifyChain(j.records)
}

// Close implements Journal.
func (j *MemoryJournal) Close() error { return nil }
