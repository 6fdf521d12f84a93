package domain

// ItemID identifies an item or folder on the server.
type ItemID struct {
	// ID is the opaque server identifier.
	ID string
	// ChangeKey identifies the version of the object.
	ChangeKey string
}

// IsZero reports whether the identifier is unset.
func (id ItemID) IsZero() bool {
	return id.ID == ""
}

// ServiceObject is a materialised item or folder carried by a change.
type ServiceObject struct {
	// Kind is the wire element name, e.g. "Message", "CalendarItem" or "Folder".
	Kind string
	// ID identifies the object.
	ID ItemID
	// ParentFolderID identifies the containing folder when the server sent it.
	ParentFolderID ItemID
	// Properties holds simple-valued child elements keyed by element name.
	Properties map[string]string
}

// Property returns a simple property value.
func (o *ServiceObject) Property(name string) string {
	if o == nil || o.Properties == nil {
		return ""
	}
	return o.Properties[name]
}

// IsFolder reports whether the object is a folder rather than an item.
func (o *ServiceObject) IsFolder() bool {
	switch o.Kind {
	case "Folder", "CalendarFolder", "ContactsFolder", "SearchFolder", "TasksFolder":
		return true
	default:
		return false
	}
}

// ChangeType is the kind of a synchronisation change.
type ChangeType int

const (
	// ChangeCreate indicates a new object.
	ChangeCreate ChangeType = iota
	// ChangeUpdate indicates a modified object.
	ChangeUpdate
	// ChangeDelete indicates a removed object.
	ChangeDelete
	// ChangeReadFlagChange indicates only the read flag of an item changed.
	ChangeReadFlagChange
)

// String returns the wire element name of the change type.
func (t ChangeType) String() string {
	switch t {
	case ChangeCreate:
		return "Create"
	case ChangeUpdate:
		return "Update"
	case ChangeDelete:
		return "Delete"
	case ChangeReadFlagChange:
		return "ReadFlagChange"
	default:
		return "Unknown"
	}
}

// ChangeRecord is one change returned by a synchronisation call.
// Records are immutable once constructed.
type ChangeRecord struct {
	changeType ChangeType
	object     *ServiceObject
	id         ItemID
	isRead     bool
}

// NewCreate builds a create change for a materialised object.
func NewCreate(obj *ServiceObject) ChangeRecord {
	return ChangeRecord{changeType: ChangeCreate, object: obj}
}

// NewUpdate builds an update change for a materialised object.
func NewUpdate(obj *ServiceObject) ChangeRecord {
	return ChangeRecord{changeType: ChangeUpdate, object: obj}
}

// NewDelete builds a delete change that carries only an identifier.
func NewDelete(id ItemID) ChangeRecord {
	return ChangeRecord{changeType: ChangeDelete, id: id}
}

// NewReadFlagChange builds a read flag change for an item.
func NewReadFlagChange(id ItemID, isRead bool) ChangeRecord {
	return ChangeRecord{changeType: ChangeReadFlagChange, id: id, isRead: isRead}
}

// Type returns the change type.
func (c ChangeRecord) Type() ChangeType {
	return c.changeType
}

// Object returns the materialised object, or nil for delete and read flag changes.
func (c ChangeRecord) Object() *ServiceObject {
	return c.object
}

// ID returns the identifier of the changed object.
// The object's own identifier wins when the change carries an object;
// otherwise the identifier captured from the wire payload is returned.
func (c ChangeRecord) ID() ItemID {
	if c.object != nil && !c.object.ID.IsZero() {
		return c.object.ID
	}
	return c.id
}

// IsRead returns the new read state. Only meaningful for ChangeReadFlagChange.
func (c ChangeRecord) IsRead() bool {
	return c.isRead
}

// ChangeFeed is one page of synchronisation results.
// Records keep server order, which is the order they must be applied in.
type ChangeFeed struct {
	records              []ChangeRecord
	syncState            string
	moreChangesAvailable bool
}

// NewChangeFeed creates an empty feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{}
}

// Add appends a record. Records are never reordered or deduplicated.
func (f *ChangeFeed) Add(record ChangeRecord) {
	f.records = append(f.records, record)
}

// Records returns the records in server order.
// The returned slice is a copy; mutating it does not affect the feed.
func (f *ChangeFeed) Records() []ChangeRecord {
	out := make([]ChangeRecord, len(f.records))
	copy(out, f.records)
	return out
}

// Len returns the number of records.
func (f *ChangeFeed) Len() int {
	return len(f.records)
}

// At returns the record at index i.
func (f *ChangeFeed) At(i int) ChangeRecord {
	return f.records[i]
}

// SyncState returns the opaque token to pass to the next synchronisation call.
func (f *ChangeFeed) SyncState() string {
	return f.syncState
}

// SetSyncState stores the opaque token received from the server.
func (f *ChangeFeed) SetSyncState(token string) {
	f.syncState = token
}

// MoreChangesAvailable reports whether another call is needed to drain the folder.
func (f *ChangeFeed) MoreChangesAvailable() bool {
	return f.moreChangesAvailable
}

// SetMoreChangesAvailable records the server's paging signal.
func (f *ChangeFeed) SetMoreChangesAvailable(more bool) {
	f.moreChangesAvailable = more
}
