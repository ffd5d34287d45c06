package networking

import (
	"testing"

	"starlane/engine/internal/state"
)

func sampleSnapshot() state.Snapshot {
	return state.Snapshot{
		Tick:  40,
		Phase: state.PhasePlaying,
		Territories: []*state.Territory{
			{ID: 1, Owner: 1, Armies: 12, Throne: true},
			{ID: 2, Owner: 2, Armies: 4},
		},
		Players: []*state.Player{
			{ID: 1, Name: "alpha", Kind: state.HumanPlayer},
			{ID: 2, Name: "beta", Kind: state.BotPlayer},
		},
	}
}

func TestKeyframeRoundTripVerifiesChecksum(t *testing.T) {
	publisher := NewSnapshotPublisher(NewSnappyCompressor(), 20)
	frame, err := publisher.EncodeKeyframe(sampleSnapshot())
	if err != nil {
		t.Fatalf("encode keyframe: %v", err)
	}
	if frame.Kind != FrameKeyframe || frame.Tick != 40 || frame.Codec != "snappy" {
		t.Fatalf("unexpected frame header %+v", frame)
	}
	if frame.Checksum == "" {
		t.Fatal("expected checksum on keyframe")
	}

	decoded, err := DecodeKeyframe(frame)
	if err != nil {
		t.Fatalf("decode keyframe: %v", err)
	}
	if decoded.Tick != 40 || len(decoded.Territories) != 2 || len(decoded.Players) != 2 {
		t.Fatalf("unexpected decoded snapshot %+v", decoded)
	}
	if !decoded.Territories[0].Throne || decoded.Territories[0].Armies != 12 {
		t.Fatalf("territory payload lost detail: %+v", decoded.Territories[0])
	}
}

func TestKeyframeRejectsTamperedChecksum(t *testing.T) {
	publisher := NewSnapshotPublisher(nil, 20)
	frame, err := publisher.EncodeKeyframe(sampleSnapshot())
	if err != nil {
		t.Fatalf("encode keyframe: %v", err)
	}
	frame.Checksum = "deadbeef"
	if _, err := DecodeKeyframe(frame); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestDeltaRoundTrip(t *testing.T) {
	publisher := NewSnapshotPublisher(NewGZIPCompressor(), 20)
	diff := state.TickDiff{
		Tick:  41,
		Phase: state.PhasePlaying,
		Territories: state.TerritoryDiff{
			Updated: []*state.Territory{{ID: 2, Owner: 1, Armies: 3}},
			Removed: nil,
		},
	}
	frame, err := publisher.EncodeDelta(diff)
	if err != nil {
		t.Fatalf("encode delta: %v", err)
	}
	if frame.Kind != FrameDelta || frame.Checksum != "" {
		t.Fatalf("unexpected delta header %+v", frame)
	}
	decoded, err := DecodeDelta(frame)
	if err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	if decoded.Tick != 41 || len(decoded.Territories.Updated) != 1 {
		t.Fatalf("unexpected decoded diff %+v", decoded)
	}
	if decoded.Territories.Updated[0].Owner != 1 {
		t.Fatalf("ownership change lost: %+v", decoded.Territories.Updated[0])
	}
}

func TestDecodeRejectsKindMismatch(t *testing.T) {
	publisher := NewSnapshotPublisher(nil, 20)
	frame, err := publisher.EncodeDelta(state.TickDiff{Tick: 7})
	if err != nil {
		t.Fatalf("encode delta: %v", err)
	}
	if _, err := DecodeKeyframe(frame); err == nil {
		t.Fatal("expected kind mismatch error")
	}
}

func TestShouldKeyframeCadence(t *testing.T) {
	publisher := NewSnapshotPublisher(nil, 20)
	for _, tick := range []uint64{0, 20, 40} {
		if !publisher.ShouldKeyframe(tick) {
			t.Fatalf("expected keyframe at tick %d", tick)
		}
	}
	for _, tick := range []uint64{1, 19, 21} {
		if publisher.ShouldKeyframe(tick) {
			t.Fatalf("unexpected keyframe at tick %d", tick)
		}
	}
}

func TestPublishMetricsAccumulate(t *testing.T) {
	publisher := NewSnapshotPublisher(nil, 20)
	if _, err := publisher.EncodeKeyframe(sampleSnapshot()); err != nil {
		t.Fatalf("encode keyframe: %v", err)
	}
	if _, err := publisher.EncodeDelta(state.TickDiff{Tick: 41}); err != nil {
		t.Fatalf("encode delta: %v", err)
	}
	if _, err := publisher.EncodeDelta(state.TickDiff{Tick: 42}); err != nil {
		t.Fatalf("encode delta: %v", err)
	}

	frames := publisher.Metrics().FramesByKind()
	if frames[FrameKeyframe] != 1 || frames[FrameDelta] != 2 {
		t.Fatalf("unexpected frame counts %+v", frames)
	}
	bytesByKind := publisher.Metrics().BytesByKind()
	if bytesByKind[FrameKeyframe] == 0 || bytesByKind[FrameDelta] == 0 {
		t.Fatalf("expected nonzero byte counters %+v", bytesByKind)
	}
}
