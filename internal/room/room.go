// Package room implements the single-threaded per-room execution
// engine: command application, the create/populate/created object
// lifecycle, permission-gated field mutation, and group-filtered
// command fan-out.
//
// A *Room is not safe for concurrent use. The server layer schedules one
// goroutine per room and never holds a Room across a suspension point.
package room

import (
	"github.com/avkviring/cheetah-relay/internal/codec"
	"github.com/avkviring/cheetah-relay/internal/command"
	"github.com/avkviring/cheetah-relay/internal/objectid"
)

// ID identifies a room within the relay process.
type ID uint64

// Room is the authoritative object catalog and command dispatcher for
// one game session.
type Room struct {
	ID          ID
	Members     map[objectid.MemberID]*Member
	memberOrder []objectid.MemberID

	Objects     *orderedObjects
	Permissions *PermissionManager

	nextRoomObjectID uint32

	// tempIDRemap maps, per member, the client-local placeholder id used
	// in a room-owned CreateGameObject command to the server-allocated
	// GameObjectID, so later commands referencing the same placeholder
	// resolve to the real object.
	tempIDRemap map[objectid.MemberID]map[uint32]objectid.GameObjectID
}

// NewRoom creates an empty room. Room-owned object ids are allocated
// starting at objectid.ClientObjectIDOffset, leaving the ids below it
// for server/template objects seeded out of band.
func NewRoom(id ID) *Room {
	return &Room{
		ID:               id,
		Members:          make(map[objectid.MemberID]*Member),
		Objects:          newOrderedObjects(),
		Permissions:      NewPermissionManager(),
		nextRoomObjectID: objectid.ClientObjectIDOffset,
		tempIDRemap:      make(map[objectid.MemberID]map[uint32]objectid.GameObjectID),
	}
}

// AddMember registers a connected member. It does not attach them; the
// client must send AttachToRoom before it starts receiving broadcasts.
func (r *Room) AddMember(id objectid.MemberID, key [codec.KeySize]byte, groups objectid.AccessGroups, super bool) *Member {
	m := newMember(id, key, groups, super)
	m.Connected = true
	r.Members[id] = m
	r.memberOrder = append(r.memberOrder, id)
	return m
}

// RemoveMember disconnects a member, resetting every compare-and-set
// field it currently owns to its registered reset value.
func (r *Room) RemoveMember(id objectid.MemberID) {
	if _, ok := r.Members[id]; !ok {
		return
	}

	r.Objects.Range(func(obj *GameObject) bool {
		for field, owner := range obj.CompareAndSetOwners {
			if owner != id {
				continue
			}
			if obj.compareAndSetHasRst[field] {
				obj.LongFields[field] = obj.compareAndSetReset[field]
				if obj.Created {
					r.fanOut(id, obj.AccessGroups, command.Command{
						Kind:      command.SetLong,
						ObjectID:  obj.ID,
						FieldID:   field,
						LongValue: obj.LongFields[field],
					})
				}
			}
			delete(obj.CompareAndSetOwners, field)
			delete(obj.compareAndSetReset, field)
			delete(obj.compareAndSetHasRst, field)
		}
		return true
	})

	delete(r.Members, id)
	delete(r.tempIDRemap, id)
	for i, mid := range r.memberOrder {
		if mid == id {
			r.memberOrder = append(r.memberOrder[:i], r.memberOrder[i+1:]...)
			break
		}
	}
}

// ExecuteCommand applies one command issued by memberID, mutating room
// state and queuing fan-out onto other members' OutCommands as needed.
func (r *Room) ExecuteCommand(memberID objectid.MemberID, c command.Command) error {
	m, ok := r.Members[memberID]
	if !ok {
		return ErrUnknownMember
	}

	switch c.Kind {
	case command.AttachToRoom:
		return r.attach(m)
	case command.DetachFromRoom:
		return r.detach(m)
	case command.CreateGameObject:
		return r.createGameObject(m, c)
	}

	c.ObjectID = r.resolveObjectID(m, c.ObjectID)

	switch c.Kind {
	case command.CreatedGameObject:
		return r.createdGameObject(m, c)
	case command.DeleteGameObject:
		return r.deleteGameObject(m, c)
	case command.SetLong, command.IncrementLong, command.CompareAndSetLong,
		command.SetDouble, command.IncrementDouble, command.SetStructure:
		return r.mutateField(m, c)
	case command.Event, command.TargetEvent:
		return r.dispatchEvent(m, c)
	default:
		return ErrUnknownCommandKind
	}
}

// resolveObjectID expands a client's room-owned placeholder id into the
// real GameObjectID allocated for it, if one was registered by an
// earlier CreateGameObject in this room. Member-owned ids and already
// real room-owned ids pass through unchanged.
func (r *Room) resolveObjectID(m *Member, id objectid.GameObjectID) objectid.GameObjectID {
	if id.Owner.Kind != objectid.OwnerRoom {
		return id
	}
	if remap, ok := r.tempIDRemap[m.ID]; ok {
		if real, ok := remap[id.ID]; ok {
			return real
		}
	}
	return id
}

func (r *Room) allocateRoomObjectID() uint32 {
	id := r.nextRoomObjectID
	r.nextRoomObjectID++
	return id
}

func (r *Room) rememberTempID(member objectid.MemberID, tempID uint32, real objectid.GameObjectID) {
	remap, ok := r.tempIDRemap[member]
	if !ok {
		remap = make(map[uint32]objectid.GameObjectID)
		r.tempIDRemap[member] = remap
	}
	remap[tempID] = real
}

// createGameObject registers a new, not-yet-created object:
// member-owned objects keep the client's own id (which must stay below
// ClientObjectIDOffset), while room-owned objects get a server id and a
// temp-id remap entry so the client can keep referring to it by the
// placeholder it chose.
func (r *Room) createGameObject(m *Member, c command.Command) error {
	var realID objectid.GameObjectID
	if c.ObjectID.Owner.Kind == objectid.OwnerRoom {
		allocated := r.allocateRoomObjectID()
		realID = objectid.GameObjectID{ID: allocated, Owner: objectid.RoomOwner()}
		r.rememberTempID(m.ID, c.ObjectID.ID, realID)
	} else {
		if c.ObjectID.Owner.Kind != objectid.OwnerMember || c.ObjectID.Owner.MemberID != m.ID {
			return ErrObjectOwnerMismatch
		}
		if c.ObjectID.ID >= objectid.ClientObjectIDOffset {
			return ErrMemberObjectHasWrongID
		}
		realID = c.ObjectID
	}

	if _, exists := r.Objects.Get(realID); exists {
		return ErrObjectAlreadyExists
	}

	obj := newGameObject(realID, c.TemplateID, c.AccessGroups, m.ID)
	r.Objects.Insert(obj)
	return nil
}

// createdGameObject finalizes an object's create/populate sequence and
// fans out its full state (Create, every populated field, Created) to
// every other attached member whose groups see it.
func (r *Room) createdGameObject(m *Member, c command.Command) error {
	obj, ok := r.Objects.Get(c.ObjectID)
	if !ok {
		return ErrObjectNotFound
	}
	if obj.Creator != m.ID {
		return ErrNotCreator
	}
	if obj.Created {
		return ErrAlreadyCreated
	}
	obj.Created = true
	r.broadcastCreation(m.ID, obj)
	return nil
}

func (r *Room) broadcastCreation(issuer objectid.MemberID, obj *GameObject) {
	create := command.Command{
		Kind:         command.CreateGameObject,
		ObjectID:     obj.ID,
		TemplateID:   obj.TemplateID,
		AccessGroups: obj.AccessGroups,
	}
	created := command.Command{Kind: command.CreatedGameObject, ObjectID: obj.ID}

	r.forEachEligibleMember(issuer, obj.AccessGroups, func(other *Member) {
		other.enqueue(create)
		for _, fid := range sortedLongKeys(obj.LongFields) {
			other.enqueue(command.Command{Kind: command.SetLong, ObjectID: obj.ID, FieldID: fid, LongValue: obj.LongFields[fid]})
		}
		for _, fid := range sortedDoubleKeys(obj.DoubleFields) {
			other.enqueue(command.Command{Kind: command.SetDouble, ObjectID: obj.ID, FieldID: fid, DoubleValue: obj.DoubleFields[fid]})
		}
		for _, fid := range sortedStructureKeys(obj.StructureFields) {
			other.enqueue(command.Command{Kind: command.SetStructure, ObjectID: obj.ID, FieldID: fid, Data: obj.StructureFields[fid]})
		}
		other.enqueue(created)
	})
}

// deleteGameObject removes an object; only its creator may delete it.
// Deletion is only broadcast if the object had already been created.
func (r *Room) deleteGameObject(m *Member, c command.Command) error {
	obj, ok := r.Objects.Get(c.ObjectID)
	if !ok {
		return ErrObjectNotFound
	}
	if obj.Creator != m.ID {
		return ErrNotCreator
	}

	wasCreated := obj.Created
	r.Objects.Delete(obj.ID)
	if wasCreated {
		r.fanOut(m.ID, obj.AccessGroups, command.Command{Kind: command.DeleteGameObject, ObjectID: obj.ID})
	}
	return nil
}

// mutateField applies a field-mutation command after an access-group
// check and a permission check (the object's creator bypasses the
// permission rule). Mutations on an already-created object are fanned
// out to other eligible attached members.
func (r *Room) mutateField(m *Member, c command.Command) error {
	obj, ok := r.Objects.Get(c.ObjectID)
	if !ok {
		return ErrObjectNotFound
	}
	if !obj.AccessGroups.Intersects(m.AccessGroups) {
		return ErrAccessDenied
	}

	isOwner := obj.Creator == m.ID
	if !isOwner {
		if r.Permissions.Get(obj.TemplateID, c.FieldID, m.AccessGroups) != Rw {
			return ErrPermissionDenied
		}
	}

	switch c.Kind {
	case command.SetLong:
		obj.LongFields[c.FieldID] = c.LongValue
	case command.IncrementLong:
		obj.LongFields[c.FieldID] += c.LongValue
	case command.CompareAndSetLong:
		if obj.LongFields[c.FieldID] != c.CompareCurrent {
			return nil // mismatch is not an error, just a no-op
		}
		obj.LongFields[c.FieldID] = c.CompareNew
		obj.CompareAndSetOwners[c.FieldID] = m.ID
		if c.HasReset {
			obj.compareAndSetReset[c.FieldID] = c.CompareReset
			obj.compareAndSetHasRst[c.FieldID] = true
		} else {
			delete(obj.compareAndSetReset, c.FieldID)
			delete(obj.compareAndSetHasRst, c.FieldID)
		}
	case command.SetDouble:
		obj.DoubleFields[c.FieldID] = c.DoubleValue
	case command.IncrementDouble:
		obj.DoubleFields[c.FieldID] += c.DoubleValue
	case command.SetStructure:
		obj.StructureFields[c.FieldID] = c.Data
	}

	if obj.Created {
		r.fanOut(m.ID, obj.AccessGroups, c)
	}
	return nil
}

// dispatchEvent delivers a transient Event (group broadcast) or
// TargetEvent (single recipient, bypassing group filtering entirely).
func (r *Room) dispatchEvent(m *Member, c command.Command) error {
	obj, ok := r.Objects.Get(c.ObjectID)
	if !ok {
		return ErrObjectNotFound
	}
	if !obj.AccessGroups.Intersects(m.AccessGroups) {
		return ErrAccessDenied
	}
	if obj.Creator != m.ID && r.Permissions.Get(obj.TemplateID, c.FieldID, m.AccessGroups) == Deny {
		return ErrPermissionDenied
	}

	if c.Kind == command.TargetEvent {
		target, ok := r.Members[c.Target]
		if !ok || !target.Attached {
			return ErrUnknownMember
		}
		target.enqueue(c)
		return nil
	}

	r.fanOut(m.ID, obj.AccessGroups, c)
	return nil
}

// attach marks a member attached and streams the full create sequence
// for every already-created object its groups can see; uncreated
// objects are never streamed.
func (r *Room) attach(m *Member) error {
	m.Attached = true
	r.Objects.Range(func(obj *GameObject) bool {
		if !obj.Created || !obj.AccessGroups.Intersects(m.AccessGroups) {
			return true
		}
		m.enqueue(command.Command{Kind: command.CreateGameObject, ObjectID: obj.ID, TemplateID: obj.TemplateID, AccessGroups: obj.AccessGroups})
		for _, fid := range sortedLongKeys(obj.LongFields) {
			m.enqueue(command.Command{Kind: command.SetLong, ObjectID: obj.ID, FieldID: fid, LongValue: obj.LongFields[fid]})
		}
		for _, fid := range sortedDoubleKeys(obj.DoubleFields) {
			m.enqueue(command.Command{Kind: command.SetDouble, ObjectID: obj.ID, FieldID: fid, DoubleValue: obj.DoubleFields[fid]})
		}
		for _, fid := range sortedStructureKeys(obj.StructureFields) {
			m.enqueue(command.Command{Kind: command.SetStructure, ObjectID: obj.ID, FieldID: fid, Data: obj.StructureFields[fid]})
		}
		m.enqueue(command.Command{Kind: command.CreatedGameObject, ObjectID: obj.ID})
		return true
	})
	return nil
}

func (r *Room) detach(m *Member) error {
	m.Attached = false
	return nil
}

func (r *Room) fanOut(issuer objectid.MemberID, groups objectid.AccessGroups, c command.Command) {
	r.forEachEligibleMember(issuer, groups, func(other *Member) {
		other.enqueue(c)
	})
}

// forEachEligibleMember visits every attached member but the issuer
// whose access groups intersect groups, in room join order so fan-out
// is deterministic.
func (r *Room) forEachEligibleMember(issuer objectid.MemberID, groups objectid.AccessGroups, fn func(*Member)) {
	for _, id := range r.memberOrder {
		if id == issuer {
			continue
		}
		other, ok := r.Members[id]
		if !ok || !other.Attached {
			continue
		}
		if !other.AccessGroups.Intersects(groups) {
			continue
		}
		fn(other)
	}
}
