// Package serializer provides stable encoding of context snapshots for
// transport between distributed workers and for durable persistence.
package serializer

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Serialize encodes snapshot with map keys sorted before encoding, so two
// equal snapshots always produce identical bytes regardless of Go's
// randomized map iteration order, so the encoded bytes can be compared or
// hashed directly.
func Serialize(snapshot map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(snapshot); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize decodes bytes produced by Serialize back into a snapshot.
// deserialize(serialize(ctx)) == ctx for every value Serialize supports.
func Deserialize(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
