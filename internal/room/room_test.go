package room

import (
	"reflect"
	"testing"

	"github.com/avkviring/cheetah-relay/internal/codec"
	"github.com/avkviring/cheetah-relay/internal/command"
	"github.com/avkviring/cheetah-relay/internal/objectid"
)

const groupA objectid.AccessGroups = 0b01

func newTestRoom(t *testing.T) (*Room, *Member, *Member) {
	t.Helper()
	r := NewRoom(1)
	var key1, key2 [codec.KeySize]byte
	m1 := r.AddMember(1, key1, groupA, false)
	m2 := r.AddMember(2, key2, groupA, false)
	if err := r.ExecuteCommand(m1.ID, command.Command{Kind: command.AttachToRoom}); err != nil {
		t.Fatalf("attach m1: %v", err)
	}
	if err := r.ExecuteCommand(m2.ID, command.Command{Kind: command.AttachToRoom}); err != nil {
		t.Fatalf("attach m2: %v", err)
	}
	return r, m1, m2
}

func memberOwnedID(owner objectid.MemberID, id uint32) objectid.GameObjectID {
	return objectid.GameObjectID{ID: id, Owner: objectid.MemberOwner(owner)}
}

// TestCreateSetCreatedFanOutOrder verifies that a freshly created
// object's Create/field-set/Created sequence reaches other attached
// members in the order it was applied, and never reaches the issuer.
func TestCreateSetCreatedFanOutOrder(t *testing.T) {
	r, m1, m2 := newTestRoom(t)
	objID := memberOwnedID(m1.ID, 1)

	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreateGameObject, ObjectID: objID, TemplateID: 5, AccessGroups: groupA}))
	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.SetLong, ObjectID: objID, FieldID: 10, LongValue: 42}))
	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreatedGameObject, ObjectID: objID}))

	if got := m1.DrainOutCommands(); len(got) != 0 {
		t.Errorf("issuer m1 received %d fan-out commands, want 0: %+v", len(got), got)
	}

	got := m2.DrainOutCommands()
	want := []command.Command{
		{Kind: command.CreateGameObject, ObjectID: objID, TemplateID: 5, AccessGroups: groupA},
		{Kind: command.SetLong, ObjectID: objID, FieldID: 10, LongValue: 42},
		{Kind: command.CreatedGameObject, ObjectID: objID},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("m2 fan-out = %+v, want %+v", got, want)
	}
}

// TestPermissionDeniesNonOwnerMutation verifies that a non-owner
// member with a Deny/Ro rule on a field cannot mutate it, while the
// creator always can.
func TestPermissionDeniesNonOwnerMutation(t *testing.T) {
	r, m1, m2 := newTestRoom(t)
	objID := memberOwnedID(m1.ID, 1)

	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreateGameObject, ObjectID: objID, TemplateID: 5, AccessGroups: groupA}))
	r.Permissions.SetFieldRule(5, 10, groupA, Deny)

	err := r.ExecuteCommand(m2.ID, command.Command{Kind: command.SetLong, ObjectID: objID, FieldID: 10, LongValue: 1})
	if err != ErrPermissionDenied {
		t.Errorf("non-owner SetLong err = %v, want ErrPermissionDenied", err)
	}

	if err := r.ExecuteCommand(m1.ID, command.Command{Kind: command.SetLong, ObjectID: objID, FieldID: 10, LongValue: 1}); err != nil {
		t.Errorf("owner SetLong err = %v, want nil (owner bypasses permission)", err)
	}
}

// TestCompareAndSetResetsOnDisconnect verifies that a
// compare-and-set with a registered reset value is rolled back, and
// broadcast, when its owning member disconnects.
func TestCompareAndSetResetsOnDisconnect(t *testing.T) {
	r, m1, m2 := newTestRoom(t)
	objID := memberOwnedID(m1.ID, 1)

	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreateGameObject, ObjectID: objID, TemplateID: 5, AccessGroups: groupA}))
	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.SetLong, ObjectID: objID, FieldID: 1, LongValue: 0}))
	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreatedGameObject, ObjectID: objID}))
	m2.DrainOutCommands() // discard the create sequence

	must(t, r.ExecuteCommand(m1.ID, command.Command{
		Kind: command.CompareAndSetLong, ObjectID: objID, FieldID: 1,
		CompareCurrent: 0, CompareNew: 100, CompareReset: -1, HasReset: true,
	}))
	m2.DrainOutCommands() // discard the CAS broadcast

	obj, ok := r.Objects.Get(objID)
	if !ok {
		t.Fatalf("object vanished")
	}
	if obj.LongFields[1] != 100 {
		t.Fatalf("precondition: field = %d, want 100", obj.LongFields[1])
	}

	r.RemoveMember(m1.ID)

	if obj.LongFields[1] != -1 {
		t.Errorf("field after disconnect = %d, want reset value -1", obj.LongFields[1])
	}

	got := m2.DrainOutCommands()
	want := []command.Command{
		{Kind: command.SetLong, ObjectID: objID, FieldID: 1, LongValue: -1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reset broadcast = %+v, want %+v", got, want)
	}
}

// TestAttachStreamsOnlyCreatedObjects verifies that attaching to a
// room streams every already-created, visible object but never an
// object still mid create/populate.
func TestAttachStreamsOnlyCreatedObjects(t *testing.T) {
	r := NewRoom(1)
	var key1, key2, key3 [codec.KeySize]byte
	m1 := r.AddMember(1, key1, groupA, false)
	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.AttachToRoom}))

	createdID := memberOwnedID(m1.ID, 1)
	uncreatedID := memberOwnedID(m1.ID, 2)

	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreateGameObject, ObjectID: createdID, TemplateID: 1, AccessGroups: groupA}))
	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.SetLong, ObjectID: createdID, FieldID: 1, LongValue: 7}))
	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreatedGameObject, ObjectID: createdID}))

	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreateGameObject, ObjectID: uncreatedID, TemplateID: 1, AccessGroups: groupA}))
	m1.DrainOutCommands()

	m2 := r.AddMember(2, key2, groupA, false)
	must(t, r.ExecuteCommand(m2.ID, command.Command{Kind: command.AttachToRoom}))

	got := m2.DrainOutCommands()
	want := []command.Command{
		{Kind: command.CreateGameObject, ObjectID: createdID, TemplateID: 1, AccessGroups: groupA},
		{Kind: command.SetLong, ObjectID: createdID, FieldID: 1, LongValue: 7},
		{Kind: command.CreatedGameObject, ObjectID: createdID},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("attach stream = %+v, want %+v", got, want)
	}

	// A member outside the group sees nothing.
	m3 := r.AddMember(3, key3, 0b10, false)
	must(t, r.ExecuteCommand(m3.ID, command.Command{Kind: command.AttachToRoom}))
	if got := m3.DrainOutCommands(); len(got) != 0 {
		t.Errorf("out-of-group attach stream = %+v, want empty", got)
	}
}

func TestRoomOwnedObjectTempIDRemap(t *testing.T) {
	r, m1, m2 := newTestRoom(t)
	tempID := objectid.GameObjectID{ID: 99, Owner: objectid.RoomOwner()}

	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreateGameObject, ObjectID: tempID, TemplateID: 1, AccessGroups: groupA}))
	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.SetLong, ObjectID: tempID, FieldID: 1, LongValue: 1}))
	must(t, r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreatedGameObject, ObjectID: tempID}))

	got := m2.DrainOutCommands()
	if len(got) != 3 {
		t.Fatalf("fan-out count = %d, want 3", len(got))
	}
	real := got[0].ObjectID
	if real.Owner.Kind != objectid.OwnerRoom || real.ID < objectid.ClientObjectIDOffset {
		t.Errorf("remapped id = %+v, want a room-owned id >= %d", real, objectid.ClientObjectIDOffset)
	}
	for _, c := range got {
		if c.ObjectID != real {
			t.Errorf("fan-out command used inconsistent object id: %+v", c)
		}
	}
}

func TestMemberOwnedObjectRejectsIDAboveOffset(t *testing.T) {
	r, m1, _ := newTestRoom(t)
	badID := memberOwnedID(m1.ID, objectid.ClientObjectIDOffset)

	err := r.ExecuteCommand(m1.ID, command.Command{Kind: command.CreateGameObject, ObjectID: badID, TemplateID: 1, AccessGroups: groupA})
	if err != ErrMemberObjectHasWrongID {
		t.Errorf("err = %v, want ErrMemberObjectHasWrongID", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
