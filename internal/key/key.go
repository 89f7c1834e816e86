// Package key builds the comparable identifiers used to route keyed events
// to a subset of subscribers.
package key

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
)

// encMode serializes key values with Core Deterministic Encoding so the same
// logical value always yields the same bytes.
var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("key: CBOR encoder initialization failed: " + err.Error())
	}
}

// Key identifies a keyed subscription. Two keys are equal when they were
// built from values of the same dynamic type that serialize to the same
// bytes. Key is comparable and can be used directly as a map key.
type Key struct {
	hash uint64
	tag  reflect.Type
	data string
}

// New builds a Key from v. Values that CBOR cannot encode (funcs, channels)
// and nil are rejected.
func New(v any) (Key, error) {
	if v == nil {
		return Key{}, invalidKeyError{reason: "nil value"}
	}
	if k, ok := v.(Key); ok {
		return k, nil
	}
	b, err := encMode.Marshal(v)
	if err != nil {
		return Key{}, invalidKeyError{reason: err.Error()}
	}
	tag := reflect.TypeOf(v)
	h := xxhash.New()
	_, _ = h.WriteString(tag.String())
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(b)
	return Key{hash: h.Sum64(), tag: tag, data: string(b)}, nil
}

// MustNew is like New but panics if v cannot be used as a key.
func MustNew(v any) Key {
	k, err := New(v)
	if err != nil {
		panic(err)
	}
	return k
}

// Hash returns the precomputed hash. Equal keys have equal hashes.
func (k Key) Hash() uint64 { return k.hash }

// Type returns the dynamic type of the value the key was built from.
func (k Key) Type() reflect.Type { return k.tag }

// Bytes returns a copy of the serialized key value.
func (k Key) Bytes() []byte { return []byte(k.data) }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.tag == nil }

// Equal reports whether k and o were built from equal values of the same type.
func (k Key) Equal(o Key) bool {
	return k.tag == o.tag && k.data == o.data
}

func (k Key) String() string {
	if k.tag == nil {
		return "key(<zero>)"
	}
	return fmt.Sprintf("key(%s:%016x)", k.tag, k.hash)
}

type invalidKeyError struct{ reason string }

func (e invalidKeyError) Error() string { return "invalid key: " + e.reason }

// IsInvalidKey reports whether err was returned for a value that cannot be
// used as a key.
func IsInvalidKey(err error) bool {
	_, ok := err.(invalidKeyError)
	return ok
}
