// Package codec wraps the CBOR configuration shared by the record codec
// and the notification socket.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so that the
// same record always produces identical bytes. Decoding into untyped
// targets produces map[string]any rather than map[any]any, which keeps
// decoded payloads interchangeable with values decoded from JSON.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Records never use non-string map keys.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value, used to delay decoding of
// tagged-union bodies until the tag has been read.
type RawMessage = cbor.RawMessage

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for data.
// drain --raw prints stored notifies with it.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
