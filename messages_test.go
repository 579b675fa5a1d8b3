package server

import (
	"errors"
	"reflect"
	"testing"

	"skirmish/server/internal/command"
	"skirmish/server/internal/wire"
)

func TestSnapshotRoundTrip(t *testing.T) {
	in := Snapshot{
		Version:    ProtocolVersion,
		Kind:       FrameDelta,
		Tick:       42,
		Ack:        40,
		Self:       3,
		ServerTime: 1_700_000_000_000,
		Entities: []EntityState{
			{ID: 3, Body: []byte{0x08, 0x01}},
			{ID: 9, Body: []byte{0x10, 0x02, 0x18, 0x03}},
		},
		Removed: []command.EntityID{5, 6},
	}

	out, err := DecodeSnapshot(EncodeSnapshot(in))
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("snapshot mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestSnapshotDecodeCopiesBodies(t *testing.T) {
	data := EncodeSnapshot(Snapshot{Version: ProtocolVersion, Kind: FrameKeyframe, Entities: []EntityState{{ID: 1, Body: []byte{0x08, 0x07}}}})
	out, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	for i := range data {
		data[i] = 0
	}
	if got := out.Entities[0].Body; !reflect.DeepEqual(got, []byte{0x08, 0x07}) {
		t.Fatalf("body aliased the input buffer: %v", got)
	}
}

func TestClientFrameRoundTrip(t *testing.T) {
	in := ClientFrame{
		Ack:          17,
		Commands:     [][]byte{{0x01}, {0x02, 0x03}},
		Interactions: [][]byte{{0x0a, 0x0b}},
	}
	out, err := DecodeClientFrame(EncodeClientFrame(in))
	if err != nil {
		t.Fatalf("decode client frame: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("client frame mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestDecodeSnapshotRejectsTruncatedInput(t *testing.T) {
	data := EncodeSnapshot(Snapshot{Version: ProtocolVersion, Kind: FrameDelta, ServerTime: 1 << 40})
	_, err := DecodeSnapshot(data[:len(data)-1])
	if err == nil {
		t.Fatalf("expected truncated snapshot to fail")
	}
	if !errors.Is(err, wire.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}
