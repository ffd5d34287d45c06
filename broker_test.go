package main

import (
	"encoding/json"
	"testing"
	"time"

	"starlane/engine/internal/command"
	"starlane/engine/internal/config"
	"starlane/engine/internal/graph"
	"starlane/engine/internal/logging"
	"starlane/engine/internal/networking"
)

func testConfig() *config.Config {
	return &config.Config{
		Address:          ":0",
		MaxPayloadBytes:  1 << 20,
		PingInterval:     time.Second,
		MaxClients:       8,
		TickRateHz:       50,
		GameSpeed:        1,
		MapSize:          12,
		AICount:          2,
		MaxPlayers:       8,
		KeyframeInterval: 10,
		SnapshotCodec:    "",
		CommandRate:      100,
		CommandBurst:     20,
	}
}

func newTestClient() *client {
	return &client{send: make(chan []byte, 64)}
}

func waitForMessage(t *testing.T, c *client, wanted string) serverMessage {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case raw := <-c.send:
			var msg serverMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatalf("unmarshal broadcast: %v", err)
			}
			if msg.Type == wanted {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q message", wanted)
		}
	}
}

func TestRingLayoutBuildsValidGraph(t *testing.T) {
	layout, err := graph.New(ringLayout(12))
	if err != nil {
		t.Fatalf("ring layout invalid: %v", err)
	}
	if layout.Size() != 12 {
		t.Fatalf("expected 12 territories, got %d", layout.Size())
	}
	// Wrap-around lanes connect both ends of the ring.
	if !layout.Adjacent(1, 12) || !layout.Adjacent(1, 11) {
		t.Fatal("expected wrap-around adjacency")
	}
	if layout.Adjacent(1, 6) {
		t.Fatal("unexpected long-range lane")
	}
}

func TestDecodeCommandVariants(t *testing.T) {
	payload := func(v any) json.RawMessage {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		return raw
	}

	env := commandEnvelope{
		SchemaVersion: SchemaVersion,
		SequenceID:    1,
		Command: commandPayload{
			Type:    "attack",
			Payload: payload(commandArgs{From: 1, To: 2, Fraction: 0.5}),
		},
	}
	cmd, err := decodeCommand(7, env)
	if err != nil {
		t.Fatalf("decode attack: %v", err)
	}
	if cmd.Type != command.TypeAttack || cmd.Player != 7 || cmd.From != 1 || cmd.To != 2 || cmd.Fraction != 0.5 {
		t.Fatalf("unexpected command %+v", cmd)
	}

	env.Command = commandPayload{Type: "cancel_supply_route", Payload: payload(commandArgs{From: 3})}
	if _, err := decodeCommand(7, env); err != nil {
		t.Fatalf("cancel route should not need a target: %v", err)
	}

	env.Command = commandPayload{Type: "warp_strike", Payload: payload(commandArgs{From: 1, To: 2})}
	if _, err := decodeCommand(7, env); err == nil {
		t.Fatal("expected unknown type rejection")
	}

	env.Command = commandPayload{Type: "attack", Payload: payload(commandArgs{From: 1})}
	if _, err := decodeCommand(7, env); err == nil {
		t.Fatal("expected missing target rejection")
	}

	env.Command = commandPayload{Type: "attack", Payload: payload(commandArgs{From: 1, To: 2})}
	env.SchemaVersion = 99
	if _, err := decodeCommand(7, env); err == nil {
		t.Fatal("expected schema version rejection")
	}
}

func TestRoomJoinDeliversKeyframe(t *testing.T) {
	registry := newRoomRegistry(testConfig(), logging.NewTestLogger())
	defer registry.Close()

	room, err := registry.GetOrCreate("alpha")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	c := newTestClient()
	playerID, err := room.Join(c, "tester")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if playerID <= 0 {
		t.Fatalf("unexpected player id %d", playerID)
	}

	msg := waitForMessage(t, c, "snapshot")
	raw, _ := json.Marshal(msg.Data)
	var frame networking.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Kind != networking.FrameKeyframe {
		t.Fatalf("expected join keyframe, got %q", frame.Kind)
	}
	snap, err := networking.DecodeKeyframe(frame)
	if err != nil {
		t.Fatalf("decode keyframe: %v", err)
	}
	// Two bots seated at creation plus the human who just joined.
	if len(snap.Players) != 3 {
		t.Fatalf("expected 3 players in keyframe, got %d", len(snap.Players))
	}
}

func TestRoomBroadcastsAfterStart(t *testing.T) {
	registry := newRoomRegistry(testConfig(), logging.NewTestLogger())
	defer registry.Close()

	room, err := registry.GetOrCreate("beta")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	c := newTestClient()
	if _, err := room.Join(c, "tester"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !room.StartMatch() {
		t.Fatal("expected match to start")
	}

	// Keyframes land every KeyframeInterval ticks once the loop is running.
	waitForMessage(t, c, "snapshot")
	waitForMessage(t, c, "snapshot")

	broadcasts, rooms := registry.Stats()
	if rooms != 1 || broadcasts == 0 {
		t.Fatalf("unexpected registry stats: broadcasts=%d rooms=%d", broadcasts, rooms)
	}
}

func TestRoomReportsTimeSync(t *testing.T) {
	cfg := testConfig()
	cfg.PingInterval = 50 * time.Millisecond
	registry := newRoomRegistry(cfg, logging.NewTestLogger())
	defer registry.Close()

	room, err := registry.GetOrCreate("gamma")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	c := newTestClient()
	if _, err := room.Join(c, "tester"); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForMessage(t, c, "time_sync")
}

func TestBrokerHandleMessageGatesSequences(t *testing.T) {
	cfg := testConfig()
	broker, err := NewBroker(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	defer broker.Close()

	room, err := broker.Rooms().GetOrCreate("delta")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	c := newTestClient()
	playerID, err := room.Join(c, "tester")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	c.playerID = playerID
	c.room = room
	c.id = "delta#tester"

	// Drain the join keyframe.
	waitForMessage(t, c, "snapshot")

	envelope := func(seq uint64) []byte {
		payload, _ := json.Marshal(commandArgs{From: 1, To: 2, Fraction: 0.5})
		raw, _ := json.Marshal(commandEnvelope{
			SchemaVersion: SchemaVersion,
			SequenceID:    seq,
			Command:       commandPayload{Type: "attack", Payload: payload},
		})
		return raw
	}

	broker.handleMessage(c, envelope(5))
	// A replayed sequence id is bounced back as an error to this client only.
	broker.handleMessage(c, envelope(5))
	msg := waitForMessage(t, c, "error")
	raw, _ := json.Marshal(msg.Data)
	var cmdErr commandError
	if err := json.Unmarshal(raw, &cmdErr); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if cmdErr.Reason != "sequence" {
		t.Fatalf("expected sequence rejection, got %+v", cmdErr)
	}
}

func TestBrokerMalformedEnvelope(t *testing.T) {
	broker, err := NewBroker(testConfig(), logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	defer broker.Close()

	room, err := broker.Rooms().GetOrCreate("epsilon")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	c := newTestClient()
	if _, err := room.Join(c, "tester"); err != nil {
		t.Fatalf("join: %v", err)
	}
	c.room = room
	c.id = "epsilon#tester"
	waitForMessage(t, c, "snapshot")

	broker.handleMessage(c, []byte("{not json"))
	msg := waitForMessage(t, c, "error")
	raw, _ := json.Marshal(msg.Data)
	var cmdErr commandError
	_ = json.Unmarshal(raw, &cmdErr)
	if cmdErr.Reason != "malformed" {
		t.Fatalf("expected malformed rejection, got %+v", cmdErr)
	}
}
