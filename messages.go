package server

import (
	"fmt"

	"skirmish/server/internal/command"
	"skirmish/server/internal/wire"
)

// ProtocolVersion is stamped on every snapshot frame.
const ProtocolVersion = 1

// FrameKind distinguishes full keyframes from deltas.
type FrameKind uint8

const (
	FrameKeyframe FrameKind = iota + 1
	FrameDelta
)

// EntityState is one entity's encoded predicted field set.
type EntityState struct {
	ID   command.EntityID
	Body []byte
}

// Snapshot is a server-to-client frame. Ack is the last command tick the
// server processed for the receiving connection; clients reconcile their
// predictions against it.
type Snapshot struct {
	Version    int
	Kind       FrameKind
	Tick       int64
	Ack        int64
	Self       command.EntityID
	ServerTime int64
	Entities   []EntityState
	Removed    []command.EntityID
}

// ClientFrame is a client-to-server frame: an acknowledgement of the last
// snapshot tick applied, encoded prediction commands and encoded
// interaction requests.
type ClientFrame struct {
	Ack          int64
	Commands     [][]byte
	Interactions [][]byte
}

const (
	snapshotFieldVersion    wire.Number = 1
	snapshotFieldKind       wire.Number = 2
	snapshotFieldTick       wire.Number = 3
	snapshotFieldAck        wire.Number = 4
	snapshotFieldSelf       wire.Number = 5
	snapshotFieldServerTime wire.Number = 6
	snapshotFieldEntity     wire.Number = 7
	snapshotFieldRemoved    wire.Number = 8

	entityFieldID   wire.Number = 1
	entityFieldBody wire.Number = 2

	clientFieldAck         wire.Number = 1
	clientFieldCommand     wire.Number = 2
	clientFieldInteraction wire.Number = 3
)

// EncodeSnapshot serializes a snapshot frame.
func EncodeSnapshot(s Snapshot) []byte {
	size := 32
	for _, e := range s.Entities {
		size += len(e.Body) + 8
	}
	w := wire.NewWriter(size)
	w.Uint(snapshotFieldVersion, uint64(s.Version))
	w.Uint(snapshotFieldKind, uint64(s.Kind))
	w.Int(snapshotFieldTick, s.Tick)
	w.Int(snapshotFieldAck, s.Ack)
	w.Uint(snapshotFieldSelf, uint64(s.Self))
	w.Int(snapshotFieldServerTime, s.ServerTime)
	for _, e := range s.Entities {
		w.Message(snapshotFieldEntity, func(ew *wire.Writer) {
			ew.Uint(entityFieldID, uint64(e.ID))
			ew.Raw(entityFieldBody, e.Body)
		})
	}
	for _, id := range s.Removed {
		w.Uint(snapshotFieldRemoved, uint64(id))
	}
	return w.Bytes()
}

// DecodeSnapshot parses a frame produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	err := wire.NewReader(data).Each(func(f wire.Field) error {
		var (
			v   uint64
			err error
		)
		switch f.Num {
		case snapshotFieldVersion:
			v, err = f.Uint()
			s.Version = int(v)
		case snapshotFieldKind:
			v, err = f.Uint()
			s.Kind = FrameKind(v)
		case snapshotFieldTick:
			s.Tick, err = f.Int()
		case snapshotFieldAck:
			s.Ack, err = f.Int()
		case snapshotFieldSelf:
			v, err = f.Uint()
			s.Self = command.EntityID(v)
		case snapshotFieldServerTime:
			s.ServerTime, err = f.Int()
		case snapshotFieldEntity:
			var entity EntityState
			entity, err = decodeEntityState(f)
			s.Entities = append(s.Entities, entity)
		case snapshotFieldRemoved:
			v, err = f.Uint()
			s.Removed = append(s.Removed, command.EntityID(v))
		}
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

func decodeEntityState(f wire.Field) (EntityState, error) {
	var e EntityState
	r, err := f.Reader()
	if err != nil {
		return e, err
	}
	err = r.Each(func(ef wire.Field) error {
		switch ef.Num {
		case entityFieldID:
			v, err := ef.Uint()
			e.ID = command.EntityID(v)
			return err
		case entityFieldBody:
			body, err := ef.Bytes()
			e.Body = append([]byte(nil), body...)
			return err
		}
		return nil
	})
	return e, err
}

// EncodeClientFrame serializes a client frame.
func EncodeClientFrame(f ClientFrame) []byte {
	w := wire.NewWriter(64)
	w.Int(clientFieldAck, f.Ack)
	for _, cmd := range f.Commands {
		w.Raw(clientFieldCommand, cmd)
	}
	for _, req := range f.Interactions {
		w.Raw(clientFieldInteraction, req)
	}
	return w.Bytes()
}

// DecodeClientFrame parses a frame produced by EncodeClientFrame. The
// returned byte slices do not alias data.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var frame ClientFrame
	err := wire.NewReader(data).Each(func(f wire.Field) error {
		switch f.Num {
		case clientFieldAck:
			v, err := f.Int()
			frame.Ack = v
			return err
		case clientFieldCommand:
			b, err := f.Bytes()
			frame.Commands = append(frame.Commands, append([]byte(nil), b...))
			return err
		case clientFieldInteraction:
			b, err := f.Bytes()
			frame.Interactions = append(frame.Interactions, append([]byte(nil), b...))
			return err
		}
		return nil
	})
	if err != nil {
		return ClientFrame{}, fmt.Errorf("decode client frame: %w", err)
	}
	return frame, nil
}

// DiagnosticsPlayer describes one connected player.
type DiagnosticsPlayer struct {
	ConnectionID int     `json:"connectionId"`
	EntityID     uint32  `json:"entityId"`
	LastAck      int64   `json:"lastAck"`
	LastCommand  int64   `json:"lastCommand"`
	Health       float64 `json:"health"`
	Strength     float64 `json:"strength"`
	Union        uint32  `json:"union"`
}
