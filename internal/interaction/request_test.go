package interaction

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"skirmish/server/internal/wire"
)

func TestPayloadIsValid(t *testing.T) {
	cases := []struct {
		name    string
		payload Payload
		valid   bool
	}{
		{"pickup", SceneObjectPayload{ObjectID: 1, Interaction: SceneInteractionPickup}, true},
		{"scene zero object", SceneObjectPayload{Interaction: SceneInteractionPickup}, false},
		{"scene unknown interaction", SceneObjectPayload{ObjectID: 1, Interaction: 9}, false},
		{"greet", PlayerPayload{TargetPlayerID: 3, Interaction: PlayerInteractionGreet}, true},
		{"player zero target", PlayerPayload{Interaction: PlayerInteractionTrade}, false},
		{"hazard", HazardPayload{HazardID: 1, Intensity: 0.5}, true},
		{"hazard zero intensity", HazardPayload{HazardID: 1}, false},
		{"hazard nan", HazardPayload{HazardID: 1, Intensity: math.NaN()}, false},
		{"hazard inf", HazardPayload{HazardID: 1, Intensity: math.Inf(1)}, false},
		{"drop", DropPayload{Items: []DroppedItem{{ItemType: 2, Count: 1}}}, true},
		{"drop empty", DropPayload{}, false},
		{"drop zero count", DropPayload{Items: []DroppedItem{{ItemType: 2}}}, false},
		{"union", UnionChangePayload{KillerID: 1, VictimID: 2}, true},
		{"union self", UnionChangePayload{KillerID: 1, VictimID: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.valid, tc.payload.IsValid())
		})
	}
}

func TestValidateOrder(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	base := Request{
		Header: Header{
			CommandID:   uuid.New(),
			Tick:        4,
			Category:    CategoryPlayerToPlayer,
			TimestampMs: now.UnixMilli(),
		},
		Payload: PlayerPayload{TargetPlayerID: 2, Interaction: PlayerInteractionTrade},
	}

	cases := []struct {
		name   string
		mutate func(*Request)
		reason string
	}{
		{"valid", func(*Request) {}, ""},
		{"nil command id", func(r *Request) { r.Header.CommandID = uuid.Nil; r.Header.Tick = 0 }, RejectMissingCommandID},
		{"negative tick", func(r *Request) { r.Header.Tick = -1 }, RejectInvalidTick},
		{"future timestamp", func(r *Request) { r.Header.TimestampMs += 5001 }, RejectStaleTimestamp},
		{"edge of tolerance", func(r *Request) { r.Header.TimestampMs -= 5000 }, ""},
		{"unknown category", func(r *Request) { r.Header.Category = CategoryUnknown }, RejectUnknownCategory},
		{"nil payload", func(r *Request) { r.Payload = nil }, RejectInvalidPayload},
		{"mismatch", func(r *Request) { r.Header.Category = CategorySceneToPlayer }, RejectCategoryMismatch},
		{"client union change", func(r *Request) { r.Payload = UnionChangePayload{KillerID: 1, VictimID: 2} }, RejectUnauthorized},
		{"server union change", func(r *Request) {
			r.Payload = UnionChangePayload{KillerID: 1, VictimID: 2}
			r.Header.Authority = AuthorityServer
		}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			ok, reason := Validate(req, now, 0)
			require.Equal(t, tc.reason == "", ok)
			require.Equal(t, tc.reason, reason)
		})
	}
}

func TestCodecRoundTripPreservesVariant(t *testing.T) {
	header := Header{
		CommandID:          uuid.MustParse("6f1c2b8e-3f4a-4c1d-9a51-0e2f7b6a9c10"),
		OriginConnectionID: 12,
		Tick:               900,
		Category:           CategoryPlayerToScene,
		Position:           Position{X: 1.5, Y: -2, Z: 0.25},
		TimestampMs:        1_700_000_000_123,
		Authority:          AuthorityServer,
	}
	payloads := []Payload{
		SceneObjectPayload{ObjectID: 77, Interaction: SceneInteractionOpenChest},
		PlayerPayload{TargetPlayerID: 9, Interaction: PlayerInteractionRevive},
		HazardPayload{HazardID: 3, Intensity: 2.75},
		DropPayload{Items: []DroppedItem{{ItemType: 1, Count: 4}, {ItemType: 8, Count: 1}}},
		UnionChangePayload{KillerID: 5, VictimID: 6},
	}
	for _, payload := range payloads {
		t.Run(payload.Kind(), func(t *testing.T) {
			in := Request{Header: header, Payload: payload}
			in.Header.Category = payload.Category()
			out, err := Decode(Encode(in))
			require.NoError(t, err)
			require.Equal(t, in, out)
		})
	}
}

func TestDecodeWithoutPayloadLeavesItNil(t *testing.T) {
	out, err := Decode(Encode(Request{Header: Header{Tick: 2}}))
	require.NoError(t, err)
	require.Nil(t, out.Payload)
	require.Equal(t, "unknown", out.Kind())
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	w := wire.NewWriter(16)
	w.Int(fieldTick, 1)
	w.Uint(fieldKind, 42)
	w.Message(fieldPayload, func(*wire.Writer) {})

	_, err := Decode(w.Bytes())
	require.Error(t, err)
	require.True(t, errors.Is(err, wire.ErrUnknownVariant))
}
