package serializer

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/gorango/flowcraft/internal/fctx"
)

// SerializePatch encodes a delta batch the same way Serialize encodes a
// full snapshot, for the patch(ops) flush distributed adapters perform
// between node runs.
func SerializePatch(ops []fctx.PatchOperation) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(ops); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializePatch decodes bytes produced by SerializePatch.
func DeserializePatch(data []byte) ([]fctx.PatchOperation, error) {
	var out []fctx.PatchOperation
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
