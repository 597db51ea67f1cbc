package cborfile

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode writes deterministic CBOR: canonical key order, definite lengths.
var encMode cbor.EncMode

// decMode decodes maps with any key type so a complete item always decodes;
// key checks happen afterwards. Trailing bytes are tolerated via
// UnmarshalFirst.
var decMode cbor.DecMode

// ErrKeyType reports a stored mapping, at any depth, with a key that is not
// text. Such data is left on the device untouched.
var ErrKeyType = errors.New("mapping key is not text")

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}

	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cborfile: creating encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		DefaultMapType:    reflect.TypeOf(map[any]any(nil)),
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}

	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cborfile: creating decoder mode: %v", err))
	}
}

// Marshal encodes m as a single CBOR map.
func Marshal(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}

	return encMode.Marshal(m)
}

// DecodeFirst decodes the first CBOR data item in data.
//
// Bytes after the item are ignored. A buffer that ends inside the item returns
// an error wrapping io.ErrUnexpectedEOF. ok is false when the item is not a
// map. A map holding a non-text key anywhere returns [ErrKeyType] with ok
// true.
func DecodeFirst(data []byte) (m map[string]any, ok bool, err error) {
	var v any

	_, err = decMode.UnmarshalFirst(data, &v)
	if err != nil {
		return nil, false, err
	}

	raw, ok := v.(map[any]any)
	if !ok {
		return nil, false, nil
	}

	m, err = textKeys(raw)
	if err != nil {
		return nil, true, err
	}

	return m, true, nil
}

// textKeys converts a decoded map, and every map nested in it, to
// map[string]any.
func textKeys(raw map[any]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))

	for k, v := range raw {
		key, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %v (%T)", ErrKeyType, k, k)
		}

		conv, err := textKeysValue(v)
		if err != nil {
			return nil, err
		}

		out[key] = conv
	}

	return out, nil
}

func textKeysValue(v any) (any, error) {
	switch t := v.(type) {
	case map[any]any:
		return textKeys(t)
	case []any:
		out := make([]any, len(t))

		for i, e := range t {
			conv, err := textKeysValue(e)
			if err != nil {
				return nil, err
			}

			out[i] = conv
		}

		return out, nil
	default:
		return v, nil
	}
}
