package room

import "github.com/avkviring/cheetah-relay/internal/objectid"

// GameObject is one entity in a room's catalog.
type GameObject struct {
	ID           objectid.GameObjectID
	TemplateID   uint16
	AccessGroups objectid.AccessGroups
	Created      bool

	// Creator is the member that issued the CreateGameObject command for
	// this object. Used to authorize the Created transition and, for
	// room-owned objects, deletion.
	Creator objectid.MemberID

	LongFields      map[uint16]int64
	DoubleFields    map[uint16]float64
	StructureFields map[uint16][]byte

	// CompareAndSetOwners records, per long field, the member that last
	// won a conditional set on it (the compare_and_set).
	CompareAndSetOwners map[uint16]objectid.MemberID
	compareAndSetReset  map[uint16]int64
	compareAndSetHasRst map[uint16]bool
}

func newGameObject(id objectid.GameObjectID, templateID uint16, groups objectid.AccessGroups, creator objectid.MemberID) *GameObject {
	return &GameObject{
		ID:                  id,
		TemplateID:          templateID,
		AccessGroups:        groups,
		Creator:             creator,
		LongFields:          make(map[uint16]int64),
		DoubleFields:        make(map[uint16]float64),
		StructureFields:     make(map[uint16][]byte),
		CompareAndSetOwners: make(map[uint16]objectid.MemberID),
		compareAndSetReset:  make(map[uint16]int64),
		compareAndSetHasRst: make(map[uint16]bool),
	}
}

// orderedObjects preserves insertion order, which defines deterministic
// fan-out/attach-stream order (the Room invariant).
type orderedObjects struct {
	order []objectid.GameObjectID
	byID  map[objectid.GameObjectID]*GameObject
}

func newOrderedObjects() *orderedObjects {
	return &orderedObjects{byID: make(map[objectid.GameObjectID]*GameObject)}
}

func (o *orderedObjects) Insert(obj *GameObject) {
	if _, exists := o.byID[obj.ID]; !exists {
		o.order = append(o.order, obj.ID)
	}
	o.byID[obj.ID] = obj
}

func (o *orderedObjects) Get(id objectid.GameObjectID) (*GameObject, bool) {
	obj, ok := o.byID[id]
	return obj, ok
}

func (o *orderedObjects) Delete(id objectid.GameObjectID) {
	if _, ok := o.byID[id]; !ok {
		return
	}
	delete(o.byID, id)
	for i, existing := range o.order {
		if existing == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// Range calls fn for every object in insertion order, stopping early if
// fn returns false.
func (o *orderedObjects) Range(fn func(*GameObject) bool) {
	for _, id := range o.order {
		obj, ok := o.byID[id]
		if !ok {
			continue
		}
		if !fn(obj) {
			return
		}
	}
}
