package interaction

import (
	"fmt"

	"github.com/google/uuid"

	"skirmish/server/internal/command"
	"skirmish/server/internal/wire"
)

const (
	fieldCommandID  wire.Number = 1
	fieldConnection wire.Number = 2
	fieldTick       wire.Number = 3
	fieldCategory   wire.Number = 4
	fieldPosition   wire.Number = 5
	fieldTimestamp  wire.Number = 6
	fieldAuthority  wire.Number = 7
	fieldKind       wire.Number = 8
	fieldPayload    wire.Number = 9
)

const (
	kindUnknown uint64 = iota
	kindSceneObject
	kindPlayer
	kindHazard
	kindDrop
	kindUnionChange
)

// Encode serializes a request.
func Encode(req Request) []byte {
	w := wire.NewWriter(64)
	EncodeTo(w, req)
	return w.Bytes()
}

// EncodeTo appends a request to w.
func EncodeTo(w *wire.Writer, req Request) {
	h := req.Header
	w.Raw(fieldCommandID, h.CommandID[:])
	w.Int(fieldConnection, int64(h.OriginConnectionID))
	w.Int(fieldTick, h.Tick)
	w.Uint(fieldCategory, uint64(h.Category))
	w.Message(fieldPosition, func(pw *wire.Writer) {
		pw.Float(1, h.Position.X)
		pw.Float(2, h.Position.Y)
		pw.Float(3, h.Position.Z)
	})
	w.Int(fieldTimestamp, h.TimestampMs)
	w.Uint(fieldAuthority, uint64(h.Authority))

	kind := kindOf(req.Payload)
	if kind == kindUnknown {
		return
	}
	w.Uint(fieldKind, kind)
	w.Message(fieldPayload, func(pw *wire.Writer) {
		encodePayload(pw, req.Payload)
	})
}

func kindOf(p Payload) uint64 {
	switch p.(type) {
	case SceneObjectPayload:
		return kindSceneObject
	case PlayerPayload:
		return kindPlayer
	case HazardPayload:
		return kindHazard
	case DropPayload:
		return kindDrop
	case UnionChangePayload:
		return kindUnionChange
	default:
		return kindUnknown
	}
}

func encodePayload(w *wire.Writer, payload Payload) {
	switch p := payload.(type) {
	case SceneObjectPayload:
		w.Uint(1, uint64(p.ObjectID))
		w.Uint(2, uint64(p.Interaction))
	case PlayerPayload:
		w.Uint(1, uint64(p.TargetPlayerID))
		w.Uint(2, uint64(p.Interaction))
	case HazardPayload:
		w.Uint(1, uint64(p.HazardID))
		w.Float(2, p.Intensity)
	case DropPayload:
		for _, item := range p.Items {
			w.Message(1, func(iw *wire.Writer) {
				iw.Uint(1, uint64(item.ItemType))
				iw.Int(2, int64(item.Count))
			})
		}
	case UnionChangePayload:
		w.Uint(1, uint64(p.KillerID))
		w.Uint(2, uint64(p.VictimID))
	}
}

// Decode parses a request produced by Encode.
func Decode(data []byte) (Request, error) {
	var (
		req     Request
		kind    uint64
		payload []byte
	)
	err := wire.NewReader(data).Each(func(f wire.Field) error {
		var err error
		switch f.Num {
		case fieldCommandID:
			var raw []byte
			raw, err = f.Bytes()
			if err == nil {
				req.Header.CommandID, err = uuid.FromBytes(raw)
			}
		case fieldConnection:
			var v int64
			v, err = f.Int()
			req.Header.OriginConnectionID = int(v)
		case fieldTick:
			req.Header.Tick, err = f.Int()
		case fieldCategory:
			var v uint64
			v, err = f.Uint()
			req.Header.Category = Category(v)
		case fieldPosition:
			req.Header.Position, err = decodePosition(f)
		case fieldTimestamp:
			req.Header.TimestampMs, err = f.Int()
		case fieldAuthority:
			var v uint64
			v, err = f.Uint()
			req.Header.Authority = Authority(v)
		case fieldKind:
			kind, err = f.Uint()
		case fieldPayload:
			payload, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return Request{}, fmt.Errorf("decode interaction header: %w", err)
	}
	if kind == kindUnknown {
		return req, nil
	}
	req.Payload, err = decodePayload(kind, payload)
	if err != nil {
		return Request{}, fmt.Errorf("decode interaction payload: %w", err)
	}
	return req, nil
}

func decodePosition(f wire.Field) (Position, error) {
	var pos Position
	r, err := f.Reader()
	if err != nil {
		return pos, err
	}
	err = r.Each(func(pf wire.Field) (err error) {
		switch pf.Num {
		case 1:
			pos.X, err = pf.Float()
		case 2:
			pos.Y, err = pf.Float()
		case 3:
			pos.Z, err = pf.Float()
		}
		return err
	})
	return pos, err
}

func decodePayload(kind uint64, data []byte) (Payload, error) {
	r := wire.NewReader(data)
	switch kind {
	case kindSceneObject:
		var p SceneObjectPayload
		err := r.Each(func(f wire.Field) (err error) {
			var v uint64
			switch f.Num {
			case 1:
				v, err = f.Uint()
				p.ObjectID = uint32(v)
			case 2:
				v, err = f.Uint()
				p.Interaction = SceneInteraction(v)
			}
			return err
		})
		return p, err
	case kindPlayer:
		var p PlayerPayload
		err := r.Each(func(f wire.Field) (err error) {
			var v uint64
			switch f.Num {
			case 1:
				v, err = f.Uint()
				p.TargetPlayerID = command.EntityID(v)
			case 2:
				v, err = f.Uint()
				p.Interaction = PlayerInteraction(v)
			}
			return err
		})
		return p, err
	case kindHazard:
		var p HazardPayload
		err := r.Each(func(f wire.Field) (err error) {
			switch f.Num {
			case 1:
				var v uint64
				v, err = f.Uint()
				p.HazardID = uint32(v)
			case 2:
				p.Intensity, err = f.Float()
			}
			return err
		})
		return p, err
	case kindDrop:
		var p DropPayload
		err := r.Each(func(f wire.Field) error {
			if f.Num != 1 {
				return nil
			}
			ir, err := f.Reader()
			if err != nil {
				return err
			}
			var item DroppedItem
			err = ir.Each(func(inf wire.Field) (err error) {
				switch inf.Num {
				case 1:
					var v uint64
					v, err = inf.Uint()
					item.ItemType = uint32(v)
				case 2:
					var v int64
					v, err = inf.Int()
					item.Count = int(v)
				}
				return err
			})
			p.Items = append(p.Items, item)
			return err
		})
		return p, err
	case kindUnionChange:
		var p UnionChangePayload
		err := r.Each(func(f wire.Field) (err error) {
			var v uint64
			switch f.Num {
			case 1:
				v, err = f.Uint()
				p.KillerID = command.EntityID(v)
			case 2:
				v, err = f.Uint()
				p.VictimID = command.EntityID(v)
			}
			return err
		})
		return p, err
	default:
		return nil, fmt.Errorf("payload kind %d: %w", kind, wire.ErrUnknownVariant)
	}
}
