package command

import (
	"errors"

	"github.com/avkviring/cheetah-relay/internal/channel"
	"github.com/avkviring/cheetah-relay/internal/codec"
	"github.com/avkviring/cheetah-relay/internal/objectid"
)

var errDecode = errors.New("command: decode error")

const (
	flagKindSame    = 1 << 0
	flagObjectSame  = 1 << 1
	flagFieldIDSame = 1 << 2
	flagGroupSame   = 1 << 3
)

// CommandContext tracks the last-seen object id, field id, channel
// group, and command kind within one frame, so repeated commands in a
// batch only encode what changed.
type CommandContext struct {
	hasLast  bool
	lastKind Kind
	lastObj  objectid.GameObjectID
	lastField uint16
	lastGroup uint8
}

// NewCommandContext returns an empty context. One context is used per
// frame, for all commands in that frame, in both encode and decode.
func NewCommandContext() *CommandContext {
	return &CommandContext{}
}

func encodeObjectID(buf *[]byte, id objectid.GameObjectID) {
	*buf = append(*buf, byte(id.Owner.Kind))
	if id.Owner.Kind == objectid.OwnerMember {
		codec.WriteVarUint(buf, uint64(id.Owner.MemberID))
	}
	codec.WriteVarUint(buf, uint64(id.ID))
}

func decodeObjectID(b []byte) (objectid.GameObjectID, int, error) {
	if len(b) < 1 {
		return objectid.GameObjectID{}, 0, errDecode
	}
	off := 0
	kind := objectid.OwnerKind(b[0])
	off++
	owner := objectid.Owner{Kind: kind}
	if kind == objectid.OwnerMember {
		memberID, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return objectid.GameObjectID{}, 0, errDecode
		}
		owner.MemberID = objectid.MemberID(memberID)
		off += n
	}
	id, n, err := codec.ReadVarUint(b[off:])
	if err != nil {
		return objectid.GameObjectID{}, 0, errDecode
	}
	off += n
	return objectid.GameObjectID{ID: uint32(id), Owner: owner}, off, nil
}

func encodeBytes(buf *[]byte, data []byte) {
	codec.WriteVarUint(buf, uint64(len(data)))
	*buf = append(*buf, data...)
}

func decodeBytes(b []byte) ([]byte, int, error) {
	n, off, err := codec.ReadVarUint(b)
	if err != nil {
		return nil, 0, errDecode
	}
	if uint64(len(b)) < uint64(off)+n {
		return nil, 0, errDecode
	}
	data := append([]byte(nil), b[off:uint64(off)+n]...)
	return data, off + int(n), nil
}

// Encode appends c's wire form to *buf, delta-compressing object id,
// field id, channel group, and kind against ctx, then updates ctx.
func (ctx *CommandContext) Encode(buf *[]byte, c Command) {
	var flags byte
	if ctx.hasLast && ctx.lastKind == c.Kind {
		flags |= flagKindSame
	}
	if ctx.hasLast && ctx.lastObj == c.ObjectID {
		flags |= flagObjectSame
	}
	if ctx.hasLast && ctx.lastField == c.FieldID {
		flags |= flagFieldIDSame
	}
	if ctx.hasLast && ctx.lastGroup == c.Channel.Group {
		flags |= flagGroupSame
	}
	*buf = append(*buf, flags)

	if flags&flagKindSame == 0 {
		*buf = append(*buf, byte(c.Kind))
	}
	*buf = append(*buf, byte(c.Channel.Discipline))
	if flags&flagGroupSame == 0 {
		*buf = append(*buf, c.Channel.Group)
	}
	if c.Channel.Discipline.Grouped() {
		codec.WriteVarUint(buf, uint64(c.Sequence))
	}
	if flags&flagObjectSame == 0 {
		encodeObjectID(buf, c.ObjectID)
	}
	if flags&flagFieldIDSame == 0 {
		codec.WriteVarUint(buf, uint64(c.FieldID))
	}

	switch c.Kind {
	case AttachToRoom, DetachFromRoom, CreatedGameObject, DeleteGameObject:
		// no extra payload
	case CreateGameObject:
		codec.WriteVarUint(buf, uint64(c.TemplateID))
		codec.WriteVarUint(buf, uint64(c.AccessGroups))
	case SetLong, IncrementLong:
		codec.WriteVarInt(buf, c.LongValue)
	case CompareAndSetLong:
		codec.WriteVarInt(buf, c.CompareCurrent)
		codec.WriteVarInt(buf, c.CompareNew)
		if c.HasReset {
			*buf = append(*buf, 1)
			codec.WriteVarInt(buf, c.CompareReset)
		} else {
			*buf = append(*buf, 0)
		}
	case SetDouble, IncrementDouble:
		encodeBytes(buf, float64Bytes(c.DoubleValue))
	case SetStructure:
		encodeBytes(buf, c.Data)
	case Event:
		encodeBytes(buf, c.Data)
	case TargetEvent:
		codec.WriteVarUint(buf, uint64(c.Target))
		encodeBytes(buf, c.Data)
	}

	ctx.hasLast = true
	ctx.lastKind = c.Kind
	ctx.lastObj = c.ObjectID
	ctx.lastField = c.FieldID
	ctx.lastGroup = c.Channel.Group
}

// Decode reads one command from the front of b using ctx for delta
// expansion, returning the command and bytes consumed.
func (ctx *CommandContext) Decode(b []byte) (Command, int, error) {
	if len(b) < 1 {
		return Command{}, 0, errDecode
	}
	flags := b[0]
	off := 1

	var c Command
	if flags&flagKindSame != 0 {
		if !ctx.hasLast {
			return Command{}, 0, errDecode
		}
		c.Kind = ctx.lastKind
	} else {
		if len(b) < off+1 {
			return Command{}, 0, errDecode
		}
		c.Kind = Kind(b[off])
		off++
	}

	if len(b) < off+1 {
		return Command{}, 0, errDecode
	}
	c.Channel.Discipline = channel.Discipline(b[off])
	off++

	if flags&flagGroupSame != 0 {
		c.Channel.Group = ctx.lastGroup
	} else {
		if len(b) < off+1 {
			return Command{}, 0, errDecode
		}
		c.Channel.Group = b[off]
		off++
	}

	if c.Channel.Discipline.Grouped() {
		seq, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return Command{}, 0, errDecode
		}
		c.Sequence = uint32(seq)
		off += n
	}

	if flags&flagObjectSame != 0 {
		if !ctx.hasLast {
			return Command{}, 0, errDecode
		}
		c.ObjectID = ctx.lastObj
	} else {
		id, n, err := decodeObjectID(b[off:])
		if err != nil {
			return Command{}, 0, errDecode
		}
		c.ObjectID = id
		off += n
	}

	if flags&flagFieldIDSame != 0 {
		c.FieldID = ctx.lastField
	} else {
		fid, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return Command{}, 0, errDecode
		}
		c.FieldID = uint16(fid)
		off += n
	}

	var err error
	off, err = ctx.decodePayload(&c, b, off)
	if err != nil {
		return Command{}, 0, err
	}

	ctx.hasLast = true
	ctx.lastKind = c.Kind
	ctx.lastObj = c.ObjectID
	ctx.lastField = c.FieldID
	ctx.lastGroup = c.Channel.Group

	return c, off, nil
}

func (ctx *CommandContext) decodePayload(c *Command, b []byte, off int) (int, error) {
	switch c.Kind {
	case AttachToRoom, DetachFromRoom, CreatedGameObject, DeleteGameObject:
		return off, nil
	case CreateGameObject:
		tmpl, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return 0, errDecode
		}
		off += n
		groups, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return 0, errDecode
		}
		off += n
		c.TemplateID = uint16(tmpl)
		c.AccessGroups = objectid.AccessGroups(groups)
		return off, nil
	case SetLong, IncrementLong:
		v, n, err := codec.ReadVarInt(b[off:])
		if err != nil {
			return 0, errDecode
		}
		c.LongValue = v
		return off + n, nil
	case CompareAndSetLong:
		cur, n, err := codec.ReadVarInt(b[off:])
		if err != nil {
			return 0, errDecode
		}
		off += n
		newVal, n, err := codec.ReadVarInt(b[off:])
		if err != nil {
			return 0, errDecode
		}
		off += n
		if len(b) < off+1 {
			return 0, errDecode
		}
		hasReset := b[off] == 1
		off++
		var reset int64
		if hasReset {
			reset, n, err = codec.ReadVarInt(b[off:])
			if err != nil {
				return 0, errDecode
			}
			off += n
		}
		c.CompareCurrent = cur
		c.CompareNew = newVal
		c.CompareReset = reset
		c.HasReset = hasReset
		return off, nil
	case SetDouble, IncrementDouble:
		data, n, err := decodeBytes(b[off:])
		if err != nil {
			return 0, errDecode
		}
		c.DoubleValue = bytesFloat64(data)
		return off + n, nil
	case SetStructure:
		data, n, err := decodeBytes(b[off:])
		if err != nil {
			return 0, errDecode
		}
		c.Data = data
		return off + n, nil
	case Event:
		data, n, err := decodeBytes(b[off:])
		if err != nil {
			return 0, errDecode
		}
		c.Data = data
		return off + n, nil
	case TargetEvent:
		target, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return 0, errDecode
		}
		off += n
		data, n, err := decodeBytes(b[off:])
		if err != nil {
			return 0, errDecode
		}
		c.Target = objectid.MemberID(target)
		c.Data = data
		return off + n, nil
	default:
		return 0, errDecode
	}
}
