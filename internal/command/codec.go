package command

import (
	"fmt"

	"skirmish/server/internal/wire"
)

const (
	fieldConnection wire.Number = 1
	fieldTick       wire.Number = 2
	fieldCategory   wire.Number = 3
	fieldClient     wire.Number = 4
	fieldEntity     wire.Number = 5
	fieldTimestamp  wire.Number = 6
	fieldKind       wire.Number = 7
	fieldPayload    wire.Number = 8
)

// Encode serializes a command.
func Encode(cmd Command) []byte {
	w := wire.NewWriter(48)
	EncodeTo(w, cmd)
	return w.Bytes()
}

// EncodeTo appends a command to w.
func EncodeTo(w *wire.Writer, cmd Command) {
	h := cmd.Header
	w.Int(fieldConnection, int64(h.ConnectionID))
	w.Int(fieldTick, h.Tick)
	w.Uint(fieldCategory, uint64(h.Category))
	w.Bool(fieldClient, h.ClientOriginated)
	w.Uint(fieldEntity, uint64(h.EntityID))
	w.Int(fieldTimestamp, h.TimestampMs)
	if cmd.Payload == nil {
		return
	}
	w.Uint(fieldKind, uint64(cmd.Payload.kind()))
	w.Message(fieldPayload, func(pw *wire.Writer) {
		encodePayload(pw, cmd.Payload)
	})
}

func encodePayload(w *wire.Writer, payload Payload) {
	switch p := payload.(type) {
	case InputPayload:
		w.String(1, string(p.Animation))
		w.Float(2, p.MoveX)
		w.Float(3, p.MoveY)
		w.Bool(4, p.Sprinting)
	case AnimationEventPayload:
		w.String(1, string(p.Animation))
		w.Uint(2, uint64(p.Event))
		w.Int(3, int64(p.Stage))
	case RecoverPayload:
		w.Float(1, p.DeltaSeconds)
	case AnimationCostPayload:
		w.String(1, string(p.Animation))
		w.Float(2, p.Cost)
	case EnvironmentPayload:
		w.Bool(1, p.HasInput)
		w.Uint(2, uint64(p.Environment))
		w.Bool(3, p.Sprinting)
		w.Float(4, p.DeltaSeconds)
	case BuffPayload:
		w.Uint(1, uint64(p.Property))
		w.Float(2, p.Delta)
		w.Int(3, p.DurationTicks)
	case AttackPayload:
		w.String(1, string(p.Animation))
		for _, id := range p.Defenders {
			w.Uint(2, uint64(id))
		}
		w.Float(3, p.BaseDamage)
	}
}

// Decode parses a command produced by Encode.
func Decode(data []byte) (Command, error) {
	var (
		cmd     Command
		kind    payloadKind
		payload []byte
		present bool
	)
	err := wire.NewReader(data).Each(func(f wire.Field) error {
		var err error
		switch f.Num {
		case fieldConnection:
			var v int64
			v, err = f.Int()
			cmd.Header.ConnectionID = int(v)
		case fieldTick:
			cmd.Header.Tick, err = f.Int()
		case fieldCategory:
			var v uint64
			v, err = f.Uint()
			cmd.Header.Category = Category(v)
		case fieldClient:
			cmd.Header.ClientOriginated, err = f.Bool()
		case fieldEntity:
			var v uint64
			v, err = f.Uint()
			cmd.Header.EntityID = EntityID(v)
		case fieldTimestamp:
			cmd.Header.TimestampMs, err = f.Int()
		case fieldKind:
			var v uint64
			v, err = f.Uint()
			kind = payloadKind(v)
		case fieldPayload:
			payload, err = f.Bytes()
			present = true
		}
		return err
	})
	if err != nil {
		return Command{}, fmt.Errorf("decode command header: %w", err)
	}
	if kind == kindUnknown && !present {
		return cmd, nil
	}
	cmd.Payload, err = decodePayload(kind, payload)
	if err != nil {
		return Command{}, fmt.Errorf("decode command payload: %w", err)
	}
	return cmd, nil
}

func decodePayload(kind payloadKind, data []byte) (Payload, error) {
	r := wire.NewReader(data)
	switch kind {
	case kindInput:
		var p InputPayload
		err := r.Each(func(f wire.Field) (err error) {
			switch f.Num {
			case 1:
				var s string
				s, err = f.String()
				p.Animation = AnimationID(s)
			case 2:
				p.MoveX, err = f.Float()
			case 3:
				p.MoveY, err = f.Float()
			case 4:
				p.Sprinting, err = f.Bool()
			}
			return err
		})
		return p, err
	case kindAnimationEvent:
		var p AnimationEventPayload
		err := r.Each(func(f wire.Field) (err error) {
			switch f.Num {
			case 1:
				var s string
				s, err = f.String()
				p.Animation = AnimationID(s)
			case 2:
				var v uint64
				v, err = f.Uint()
				p.Event = AnimationEvent(v)
			case 3:
				var v int64
				v, err = f.Int()
				p.Stage = int(v)
			}
			return err
		})
		return p, err
	case kindRecover:
		var p RecoverPayload
		err := r.Each(func(f wire.Field) (err error) {
			if f.Num == 1 {
				p.DeltaSeconds, err = f.Float()
			}
			return err
		})
		return p, err
	case kindAnimationCost:
		var p AnimationCostPayload
		err := r.Each(func(f wire.Field) (err error) {
			switch f.Num {
			case 1:
				var s string
				s, err = f.String()
				p.Animation = AnimationID(s)
			case 2:
				p.Cost, err = f.Float()
			}
			return err
		})
		return p, err
	case kindEnvironment:
		var p EnvironmentPayload
		err := r.Each(func(f wire.Field) (err error) {
			switch f.Num {
			case 1:
				p.HasInput, err = f.Bool()
			case 2:
				var v uint64
				v, err = f.Uint()
				p.Environment = Environment(v)
			case 3:
				p.Sprinting, err = f.Bool()
			case 4:
				p.DeltaSeconds, err = f.Float()
			}
			return err
		})
		return p, err
	case kindBuff:
		var p BuffPayload
		err := r.Each(func(f wire.Field) (err error) {
			switch f.Num {
			case 1:
				var v uint64
				v, err = f.Uint()
				p.Property = Property(v)
			case 2:
				p.Delta, err = f.Float()
			case 3:
				p.DurationTicks, err = f.Int()
			}
			return err
		})
		return p, err
	case kindAttack:
		var p AttackPayload
		err := r.Each(func(f wire.Field) (err error) {
			switch f.Num {
			case 1:
				var s string
				s, err = f.String()
				p.Animation = AnimationID(s)
			case 2:
				var v uint64
				v, err = f.Uint()
				p.Defenders = append(p.Defenders, EntityID(v))
			case 3:
				p.BaseDamage, err = f.Float()
			}
			return err
		})
		return p, err
	default:
		return nil, fmt.Errorf("payload kind %d: %w", kind, wire.ErrUnknownVariant)
	}
}
