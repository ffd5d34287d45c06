package main

import (
	"encoding/json"
	"fmt"

	"starlane/engine/internal/command"
)

// SchemaVersion identifies the command envelope layout understood by this server.
const SchemaVersion = 1

// commandEnvelope is the inbound wire format for one player command.
type commandEnvelope struct {
	SchemaVersion int            `json:"schema_version"`
	SequenceID    uint64         `json:"sequence_id"`
	Room          string         `json:"room,omitempty"`
	Command       commandPayload `json:"command"`
	SentAtMs      int64          `json:"sent_at_ms,omitempty"`
}

type commandPayload struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// commandArgs covers the union of per-type payload fields.
type commandArgs struct {
	From     int     `json:"from"`
	To       int     `json:"to"`
	Fraction float64 `json:"fraction,omitempty"`
}

// commandError is returned to the issuing client when a command is rejected.
type commandError struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
	Tick    uint64 `json:"tick"`
}

// decodeCommand validates an envelope and binds it to the issuing player.
func decodeCommand(playerID int, env commandEnvelope) (command.Command, error) {
	if env.SchemaVersion != SchemaVersion {
		return command.Command{}, fmt.Errorf("unsupported schema version %d", env.SchemaVersion)
	}
	kind := command.Type(env.Command.Type)
	switch kind {
	case command.TypeAttack, command.TypeTransfer, command.TypeLaunchProbe,
		command.TypeCreateSupplyRoute, command.TypeCancelSupplyRoute:
	default:
		return command.Command{}, fmt.Errorf("unknown command type %q", env.Command.Type)
	}

	var args commandArgs
	if len(env.Command.Payload) > 0 {
		if err := json.Unmarshal(env.Command.Payload, &args); err != nil {
			return command.Command{}, fmt.Errorf("decode %s payload: %w", kind, err)
		}
	}
	//1.- Cancelling a route only names its source; every other command needs a target.
	if kind != command.TypeCancelSupplyRoute && args.To == 0 {
		return command.Command{}, fmt.Errorf("%s payload missing target territory", kind)
	}
	if args.From == 0 {
		return command.Command{}, fmt.Errorf("%s payload missing source territory", kind)
	}

	return command.Command{
		Type:     kind,
		Player:   playerID,
		From:     args.From,
		To:       args.To,
		Fraction: args.Fraction,
	}, nil
}
