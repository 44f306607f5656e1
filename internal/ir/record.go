package ir

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/govbot/internal/codec"
)

// RecordKind tags a Value in the binary envelope.
type RecordKind uint8

// Record kinds. The numeric values are part of the wire format.
const (
	KindEntry        RecordKind = 1
	KindIndex        RecordKind = 2
	KindSubscription RecordKind = 3
	KindRegistration RecordKind = 4
	KindNotify       RecordKind = 5
	KindUserMetaData RecordKind = 6
	KindNotification RecordKind = 7
)

func (k RecordKind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindIndex:
		return "index"
	case KindSubscription:
		return "subscription"
	case KindRegistration:
		return "registration"
	case KindNotify:
		return "notify"
	case KindUserMetaData:
		return "user_meta_data"
	case KindNotification:
		return "notification"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the closed union exchanged over the notification socket.
// Only types in this package implement it.
type Value interface {
	Kind() RecordKind
	value()
}

// Record is a Value persisted under a content-derived key.
type Record interface {
	Value
	Key() (Key, error)
}

// Imperative tells subscribers whether a changed entry is worth a push.
type Imperative string

// Imperatives.
const (
	ImperativeNotify Imperative = "notify"
	ImperativeUpdate Imperative = "update"
)

// Entry is a stored observation.
type Entry struct {
	Timestamp  int64      // unix seconds
	Origin     string     // producer id
	Data       CustomData // polymorphic payload
	Imperative Imperative
}

type entryWire struct {
	Timestamp  int64      `json:"timestamp"`
	Origin     string     `json:"origin"`
	CustomData taggedData `json:"custom_data"`
	Imperative Imperative `json:"imperative"`
}

func (e Entry) wire() entryWire {
	return entryWire{
		Timestamp:  e.Timestamp,
		Origin:     e.Origin,
		CustomData: taggedData{Data: e.Data},
		Imperative: e.Imperative,
	}
}

func (e *Entry) fromWire(w entryWire) {
	*e = Entry{
		Timestamp:  w.Timestamp,
		Origin:     w.Origin,
		Data:       w.CustomData.Data,
		Imperative: w.Imperative,
	}
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) { return json.Marshal(e.wire()) }

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.fromWire(w)
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (e Entry) MarshalCBOR() ([]byte, error) { return codec.Marshal(e.wire()) }

// UnmarshalCBOR implements cbor.Unmarshaler.
func (e *Entry) UnmarshalCBOR(data []byte) error {
	var w entryWire
	if err := codec.Unmarshal(data, &w); err != nil {
		return err
	}
	e.fromWire(w)
	return nil
}

// Kind implements Value.
func (*Entry) Kind() RecordKind { return KindEntry }

// Key implements Record.
func (e *Entry) Key() (Key, error) { return EntryKey(e.Origin, e.Data) }

// Get returns an entry-level field (timestamp, origin, imperative, kind,
// key) or delegates to the payload. Unknown fields read as nil.
func (e *Entry) Get(field string) IRValue {
	if e == nil {
		return nil
	}
	switch field {
	case "timestamp":
		return IRInt(e.Timestamp)
	case "origin":
		return stringValue(e.Origin)
	case "imperative":
		return stringValue(string(e.Imperative))
	case "kind":
		if e.Data == nil {
			return nil
		}
		return IRString(e.Data.DataKind())
	case "key":
		k, err := e.Key()
		if err != nil {
			return nil
		}
		return IRString(k.String())
	}
	if e.Data == nil {
		return nil
	}
	return e.Data.Get(field)
}

// Display renders the payload, or DisplayNotSupported without one.
func (e *Entry) Display(mode string) string {
	if e == nil || e.Data == nil {
		return DisplayNotSupported
	}
	return e.Data.Display(mode)
}

// Where returns the payload's where object, or nil.
func (e *Entry) Where() IRObject {
	obj, _ := e.Get("where").(IRObject)
	return obj
}

// OrderBy returns the payload's order_by object, or nil.
func (e *Entry) OrderBy() IRObject {
	obj, _ := e.Get("order_by").(IRObject)
	return obj
}

// Index is a named list of keys referencing other records. It is either a
// membership set or a sorted index; the builder decides which.
type Index struct {
	Name string `json:"name"`
	List []Key  `json:"list"`
}

// Kind implements Value.
func (*Index) Kind() RecordKind { return KindIndex }

// Key implements Record.
func (ix *Index) Key() (Key, error) { return IndexKey(ix.Name, ix.List) }

// SubscriptionAction records the last transition applied to a Subscription.
type SubscriptionAction string

// Subscription actions.
const (
	ActionCreated    SubscriptionAction = "created"
	ActionAddUser    SubscriptionAction = "add_user"
	ActionRemoveUser SubscriptionAction = "remove_user"
	ActionUpdate     SubscriptionAction = "update"
)

// Subscription records which users follow a query and the result keys seen
// at the last evaluation.
type Subscription struct {
	Action  SubscriptionAction
	Query   QueryPart
	Users   []uint64 // sorted set of user hashes
	Results []Key
}

type subscriptionWire struct {
	Action  SubscriptionAction `json:"action"`
	Query   taggedQuery        `json:"query_part"`
	Users   []uint64           `json:"users"`
	Results []Key              `json:"results"`
}

func (s Subscription) wire() subscriptionWire {
	return subscriptionWire{Action: s.Action, Query: taggedQuery{Part: s.Query}, Users: s.Users, Results: s.Results}
}

func (s *Subscription) fromWire(w subscriptionWire) {
	*s = Subscription{Action: w.Action, Query: w.Query.Part, Users: w.Users, Results: w.Results}
}

// MarshalJSON implements json.Marshaler.
func (s Subscription) MarshalJSON() ([]byte, error) { return json.Marshal(s.wire()) }

// UnmarshalJSON implements json.Unmarshaler.
func (s *Subscription) UnmarshalJSON(data []byte) error {
	var w subscriptionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.fromWire(w)
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (s Subscription) MarshalCBOR() ([]byte, error) { return codec.Marshal(s.wire()) }

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s *Subscription) UnmarshalCBOR(data []byte) error {
	var w subscriptionWire
	if err := codec.Unmarshal(data, &w); err != nil {
		return err
	}
	s.fromWire(w)
	return nil
}

// Kind implements Value.
func (*Subscription) Kind() RecordKind { return KindSubscription }

// Key implements Record. The key depends on the query alone.
func (s *Subscription) Key() (Key, error) { return SubscriptionKey(s.Query) }

// HasUser reports whether user is subscribed.
func (s *Subscription) HasUser(user uint64) bool {
	_, found := slices.BinarySearch(s.Users, user)
	return found
}

// AddUser inserts user into the set. Returns false if already present.
func (s *Subscription) AddUser(user uint64) bool {
	i, found := slices.BinarySearch(s.Users, user)
	if found {
		return false
	}
	s.Users = slices.Insert(s.Users, i, user)
	return true
}

// RemoveUser deletes user from the set. Returns false if not present.
func (s *Subscription) RemoveUser(user uint64) bool {
	i, found := slices.BinarySearch(s.Users, user)
	if !found {
		return false
	}
	s.Users = slices.Delete(s.Users, i, i+1)
	return true
}

// Registration binds a login token to a user.
type Registration struct {
	Token    uint64 `json:"token"`
	UserHash uint64 `json:"user_hash"`
}

// Kind implements Value.
func (*Registration) Kind() RecordKind { return KindRegistration }

// Key implements Record.
func (r *Registration) Key() (Key, error) { return RegistrationKey(r.UserHash), nil }

// Button is one entry of a Notify button grid.
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Notify is an outbound rendered message for one user. Written once,
// drained by the delivery channel.
type Notify struct {
	Timestamp int64      `json:"timestamp"`
	Message   []string   `json:"message"`
	Buttons   [][]Button `json:"buttons"`
	UserHash  uint64     `json:"user_hash"`
}

// Kind implements Value.
func (*Notify) Kind() RecordKind { return KindNotify }

// Key implements Record.
func (n *Notify) Key() (Key, error) { return NotifyKey(n) }

// UserMetaData is a snapshot of the chat user behind a query.
type UserMetaData struct {
	UserID       uint64 `json:"user_id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsBot        bool   `json:"is_bot,omitempty"`
}

// Kind implements Value.
func (*UserMetaData) Kind() RecordKind { return KindUserMetaData }

// Key implements Record.
func (u *UserMetaData) Key() (Key, error) { return UserMetaDataKey(u.UserID), nil }

// UserHash returns the subscriber hash of this user.
func (u *UserMetaData) UserHash() uint64 { return UserHash(u.UserID) }

// Notification is a resolved query on its way to the dispatcher. It is
// exchanged over the notification socket and never persisted.
type Notification struct {
	Query         UserQuery       `json:"query"`
	Entries       []*Entry        `json:"entries"`
	Registrations []*Registration `json:"registrations"`
}

// Kind implements Value.
func (*Notification) Kind() RecordKind { return KindNotification }

func (*Entry) value()        {}
func (*Index) value()        {}
func (*Subscription) value() {}
func (*Registration) value() {}
func (*Notify) value()       {}
func (*UserMetaData) value() {}
func (*Notification) value() {}
