package ir

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash"
)

// Key prefixes partition the flat key-value namespace. User metadata keys
// carry no prefix.
const (
	PrefixEntry        = "entry"
	PrefixIndex        = "index"
	PrefixSubscription = "subscription"
	PrefixRegistration = "registration"
	PrefixNotify       = "notify"
)

// Domain separators for hashing. The version suffix allows a future change
// of the canonical encoding without colliding with old keys.
const (
	domainEntry        = "govbot/entry/v1"
	domainIndex        = "govbot/index/v1"
	domainSubscription = "govbot/subscription/v1"
	domainRegistration = "govbot/registration/v1"
	domainNotify       = "govbot/notify/v1"
	domainUser         = "govbot/user/v1"
)

// hashSize is the length of the hash suffix of every key.
const hashSize = 8

// Key addresses a persisted record: prefix followed by the big-endian 64-bit
// content hash. Its text form (JSON) is lowercase hex; CBOR encodes it as a
// byte string.
type Key []byte

// String returns the hex form of the key.
func (k Key) String() string {
	return hex.EncodeToString(k)
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(k)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	*k = b
	return nil
}

// Equal reports whether two keys are byte-identical.
func (k Key) Equal(other Key) bool {
	return bytes.Equal(k, other)
}

// HasPrefix reports whether k belongs to the partition named by prefix.
// The length check keeps an unprefixed user key that happens to start with
// the prefix bytes out of the partition.
func (k Key) HasPrefix(prefix string) bool {
	return len(k) == len(prefix)+hashSize && bytes.HasPrefix(k, []byte(prefix))
}

// Hash returns the 64-bit hash suffix of the key.
func (k Key) Hash() uint64 {
	if len(k) < hashSize {
		return 0
	}
	return binary.BigEndian.Uint64(k[len(k)-hashSize:])
}

func makeKey(prefix string, h uint64) Key {
	k := make(Key, 0, len(prefix)+hashSize)
	k = append(k, prefix...)
	return binary.BigEndian.AppendUint64(k, h)
}

// hash64 computes the domain-separated xxhash64 of canonical bytes.
// Format: xxhash64(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hash64(domain string, data []byte) uint64 {
	buf := make([]byte, 0, len(domain)+1+len(data))
	buf = append(buf, domain...)
	buf = append(buf, 0x00)
	buf = append(buf, data...)
	return xxhash.Sum64(buf)
}

// hashFields hashes the canonical JSON form of v under domain.
func hashFields(domain string, v any) (uint64, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return 0, err
	}
	return hash64(domain, canonical), nil
}

// EntryKey computes the key of an entry from its origin and payload only.
// Timestamp and imperative are deliberately excluded so re-observing the
// same payload overwrites the existing record.
func EntryKey(origin string, data CustomData) (Key, error) {
	fields := struct {
		Origin     string     `json:"origin"`
		CustomData taggedData `json:"custom_data"`
	}{Origin: origin, CustomData: taggedData{Data: data}}
	h, err := hashFields(domainEntry, fields)
	if err != nil {
		return nil, fmt.Errorf("EntryKey: %w", err)
	}
	return makeKey(PrefixEntry, h), nil
}

// IndexKey computes the key of an index from its name and member list.
func IndexKey(name string, list []Key) (Key, error) {
	fields := struct {
		Name string `json:"name"`
		List []Key  `json:"list"`
	}{Name: name, List: list}
	h, err := hashFields(domainIndex, fields)
	if err != nil {
		return nil, fmt.Errorf("IndexKey: %w", err)
	}
	return makeKey(PrefixIndex, h), nil
}

// SubscriptionKey computes the key of a subscription from the query part
// alone, so registering the same query twice addresses the same record.
func SubscriptionKey(part QueryPart) (Key, error) {
	raw, err := MarshalQueryPart(part)
	if err != nil {
		return nil, fmt.Errorf("SubscriptionKey: %w", err)
	}
	v, err := UnmarshalIRValue(raw)
	if err != nil {
		return nil, fmt.Errorf("SubscriptionKey: %w", err)
	}
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("SubscriptionKey: %w", err)
	}
	return makeKey(PrefixSubscription, hash64(domainSubscription, canonical)), nil
}

// RegistrationKey computes the key of a user's registration.
func RegistrationKey(userHash uint64) Key {
	return makeKey(PrefixRegistration, hash64(domainRegistration, []byte(strconv.FormatUint(userHash, 10))))
}

// NotifyKey computes the key of a notify record over all of its fields.
func NotifyKey(n *Notify) (Key, error) {
	h, err := hashFields(domainNotify, n)
	if err != nil {
		return nil, fmt.Errorf("NotifyKey: %w", err)
	}
	return makeKey(PrefixNotify, h), nil
}

// UserHash derives the subscriber hash of a chat user id. The same value
// addresses the user's metadata snapshot.
func UserHash(userID uint64) uint64 {
	return hash64(domainUser, []byte(strconv.FormatUint(userID, 10)))
}

// UserMetaDataKey computes the unprefixed key of a user metadata snapshot.
func UserMetaDataKey(userID uint64) Key {
	return binary.BigEndian.AppendUint64(make(Key, 0, hashSize), UserHash(userID))
}
