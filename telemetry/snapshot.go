package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/reef/components"
	"github.com/pthm-cable/reef/packet"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

const snapshotMagic = 0x52454546 // "REEF"

// Snapshot holds the complete simulation state for replay.
type Snapshot struct {
	Version int32
	RNGSeed int64

	WorldWidth  float32
	WorldHeight float32

	Tick int32

	Entities []EntityState

	// One serialized index per group, in group order. A nil slice
	// means the group had no index at snapshot time.
	TreeBlobs [components.NumGroups][]byte
}

// EntityState holds one entity's complete state.
type EntityState struct {
	ID    uint32
	Group components.IndexGroup

	X       float32
	Y       float32
	VelX    float32
	VelY    float32
	HalfW   float32
	HalfH   float32
	Heading float32
}

// Encode serializes the snapshot into a binary blob.
func (s *Snapshot) Encode() []byte {
	w := packet.NewWriter(64 + len(s.Entities)*40)
	w.Uint32(snapshotMagic)
	w.Int32(s.Version)
	w.Int64(s.RNGSeed)
	w.Float32(s.WorldWidth)
	w.Float32(s.WorldHeight)
	w.Int32(s.Tick)

	w.Uint32(uint32(len(s.Entities)))
	for i := range s.Entities {
		e := &s.Entities[i]
		w.Uint32(e.ID)
		w.Uint8(uint8(e.Group))
		w.Float32(e.X)
		w.Float32(e.Y)
		w.Float32(e.VelX)
		w.Float32(e.VelY)
		w.Float32(e.HalfW)
		w.Float32(e.HalfH)
		w.Float32(e.Heading)
	}

	for g := 0; g < int(components.NumGroups); g++ {
		w.Bytes32(s.TreeBlobs[g])
	}
	return w.Bytes()
}

// DecodeSnapshot parses a binary blob produced by Encode.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	r := packet.NewReader(data)
	if r.Uint32() != snapshotMagic {
		return nil, fmt.Errorf("decode snapshot: bad magic")
	}

	var s Snapshot
	s.Version = r.Int32()
	if r.Err() == nil && s.Version != SnapshotVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported version %d", s.Version)
	}
	s.RNGSeed = r.Int64()
	s.WorldWidth = r.Float32()
	s.WorldHeight = r.Float32()
	s.Tick = r.Int32()

	n := r.Uint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("decode snapshot: %w", r.Err())
	}
	if int(n) > r.Remaining() {
		return nil, fmt.Errorf("decode snapshot: entity count %d exceeds payload", n)
	}
	s.Entities = make([]EntityState, n)
	for i := range s.Entities {
		e := &s.Entities[i]
		e.ID = r.Uint32()
		e.Group = components.IndexGroup(r.Uint8())
		e.X = r.Float32()
		e.Y = r.Float32()
		e.VelX = r.Float32()
		e.VelY = r.Float32()
		e.HalfW = r.Float32()
		e.HalfH = r.Float32()
		e.Heading = r.Float32()
	}

	for g := 0; g < int(components.NumGroups); g++ {
		b := r.Bytes32()
		if len(b) > 0 {
			s.TreeBlobs[g] = append([]byte(nil), b...)
		}
	}

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d.bin", snapshot.Tick)
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, snapshot.Encode(), 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}
