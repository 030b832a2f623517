package room

import "errors"

var (
	ErrUnknownMember          = errors.New("room: unknown member")
	ErrUnknownCommandKind     = errors.New("room: unknown command kind")
	ErrObjectNotFound         = errors.New("room: object not found")
	ErrObjectAlreadyExists    = errors.New("room: object already exists")
	ErrObjectOwnerMismatch    = errors.New("room: object owner does not match issuing member")
	ErrMemberObjectHasWrongID = errors.New("room: member template contained an id >= CLIENT_OBJECT_ID_OFFSET")
	ErrAccessDenied           = errors.New("room: member's access groups do not intersect the object's")
	ErrPermissionDenied       = errors.New("room: field permission denies this mutation")
	ErrNotCreator             = errors.New("room: only the creating member may finalize or delete this object")
	ErrAlreadyCreated         = errors.New("room: object already created")
)
