package networking

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"lukechampine.com/blake3"

	"starlane/engine/internal/state"
)

// FrameKind distinguishes full world keyframes from incremental deltas.
type FrameKind string

const (
	FrameKeyframe FrameKind = "keyframe"
	FrameDelta    FrameKind = "delta"
)

// Frame is the wire envelope carrying one encoded world update.
type Frame struct {
	Kind     FrameKind `json:"kind"`
	Tick     uint64    `json:"tick"`
	Codec    string    `json:"codec,omitempty"`
	Checksum string    `json:"checksum,omitempty"`
	Payload  []byte    `json:"payload"`
}

// SnapshotPublisher encodes world state into compressed keyframe and delta frames.
type SnapshotPublisher struct {
	codec    Compressor
	interval uint64
	metrics  *PublishMetrics
}

// PublisherOption customises publisher construction.
type PublisherOption func(*SnapshotPublisher)

// WithSharedMetrics aggregates publication counters across multiple publishers.
func WithSharedMetrics(metrics *PublishMetrics) PublisherOption {
	return func(p *SnapshotPublisher) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

// NewSnapshotPublisher constructs a publisher emitting a keyframe every interval ticks.
func NewSnapshotPublisher(codec Compressor, keyframeInterval int, opts ...PublisherOption) *SnapshotPublisher {
	//1.- Fall back to passthrough encoding when no codec is supplied.
	if codec == nil {
		codec = identityCompressor{}
	}
	if keyframeInterval < 1 {
		keyframeInterval = 1
	}
	publisher := &SnapshotPublisher{
		codec:    codec,
		interval: uint64(keyframeInterval),
		metrics:  NewPublishMetrics(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(publisher)
		}
	}
	return publisher
}

// ShouldKeyframe reports whether the given tick falls on a keyframe boundary.
func (p *SnapshotPublisher) ShouldKeyframe(tick uint64) bool {
	if p == nil {
		return false
	}
	return tick%p.interval == 0
}

// EncodeKeyframe serialises a full world snapshot with an integrity checksum.
func (p *SnapshotPublisher) EncodeKeyframe(snap state.Snapshot) (Frame, error) {
	if p == nil {
		return Frame{}, fmt.Errorf("nil publisher")
	}
	//1.- Marshal before compressing so the checksum covers the canonical bytes.
	raw, err := json.Marshal(snap)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal keyframe: %w", err)
	}
	sum := blake3.Sum256(raw)
	payload, err := p.codec.Compress(raw)
	if err != nil {
		return Frame{}, fmt.Errorf("compress keyframe: %w", err)
	}
	frame := Frame{
		Kind:     FrameKeyframe,
		Tick:     snap.Tick,
		Codec:    p.codec.Name(),
		Checksum: hex.EncodeToString(sum[:]),
		Payload:  payload,
	}
	p.metrics.Observe(FrameKeyframe, len(payload))
	return frame, nil
}

// EncodeDelta serialises an incremental tick diff.
func (p *SnapshotPublisher) EncodeDelta(diff state.TickDiff) (Frame, error) {
	if p == nil {
		return Frame{}, fmt.Errorf("nil publisher")
	}
	raw, err := json.Marshal(diff)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal delta: %w", err)
	}
	payload, err := p.codec.Compress(raw)
	if err != nil {
		return Frame{}, fmt.Errorf("compress delta: %w", err)
	}
	frame := Frame{
		Kind:    FrameDelta,
		Tick:    diff.Tick,
		Codec:   p.codec.Name(),
		Payload: payload,
	}
	p.metrics.Observe(FrameDelta, len(payload))
	return frame, nil
}

// Metrics exposes the cumulative publication counters.
func (p *SnapshotPublisher) Metrics() *PublishMetrics {
	if p == nil {
		return nil
	}
	return p.metrics
}

// DecodeKeyframe restores a full snapshot from a keyframe frame and verifies
// the payload against its checksum.
func DecodeKeyframe(frame Frame) (state.Snapshot, error) {
	var snap state.Snapshot
	if frame.Kind != FrameKeyframe {
		return snap, fmt.Errorf("expected keyframe, got %q", frame.Kind)
	}
	raw, err := decodePayload(frame)
	if err != nil {
		return snap, err
	}
	//1.- Reject frames whose content drifted from the advertised digest.
	sum := blake3.Sum256(raw)
	if hex.EncodeToString(sum[:]) != frame.Checksum {
		return snap, fmt.Errorf("keyframe checksum mismatch at tick %d", frame.Tick)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("unmarshal keyframe: %w", err)
	}
	return snap, nil
}

// DecodeDelta restores a tick diff from a delta frame.
func DecodeDelta(frame Frame) (state.TickDiff, error) {
	var diff state.TickDiff
	if frame.Kind != FrameDelta {
		return diff, fmt.Errorf("expected delta, got %q", frame.Kind)
	}
	raw, err := decodePayload(frame)
	if err != nil {
		return diff, err
	}
	if err := json.Unmarshal(raw, &diff); err != nil {
		return diff, fmt.Errorf("unmarshal delta: %w", err)
	}
	return diff, nil
}

func decodePayload(frame Frame) ([]byte, error) {
	codec, err := ForName(frame.Codec)
	if err != nil {
		return nil, err
	}
	return codec.Decompress(frame.Payload)
}

// PublishMetrics tracks size and volume counters for snapshot publications.
type PublishMetrics struct {
	mu     sync.RWMutex
	bytes  map[FrameKind]int64
	frames map[FrameKind]int64
}

// NewPublishMetrics constructs an empty metrics tracker.
func NewPublishMetrics() *PublishMetrics {
	return &PublishMetrics{
		bytes:  make(map[FrameKind]int64),
		frames: make(map[FrameKind]int64),
	}
}

// Observe records the encoded payload size for one published frame.
func (m *PublishMetrics) Observe(kind FrameKind, payloadBytes int) {
	if m == nil {
		return
	}
	//1.- Promote the payload size to int64 for consistent accumulation.
	size := int64(payloadBytes)
	if size < 0 {
		size = 0
	}
	m.mu.Lock()
	m.bytes[kind] += size
	m.frames[kind]++
	m.mu.Unlock()
}

// BytesByKind returns a copy of the cumulative payload bytes per frame kind.
func (m *PublishMetrics) BytesByKind() map[FrameKind]int64 {
	if m == nil {
		return nil
	}
	//1.- Copy the counters to shield callers from concurrent mutation.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.bytes) == 0 {
		return nil
	}
	out := make(map[FrameKind]int64, len(m.bytes))
	for kind, size := range m.bytes {
		out[kind] = size
	}
	return out
}

// FramesByKind returns a copy of the cumulative frame counts per kind.
func (m *PublishMetrics) FramesByKind() map[FrameKind]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.frames) == 0 {
		return nil
	}
	out := make(map[FrameKind]int64, len(m.frames))
	for kind, count := range m.frames {
		out[kind] = count
	}
	return out
}
