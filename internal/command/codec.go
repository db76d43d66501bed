package command

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Encode binary-serializes v using gob, the payload format CommandDispatcher
// and WorkerCommandHandlers agree on for the opaque commandData/resultData
// bytes inside the JSON RPC envelope.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("command: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes data produced by Encode into v, which must be a
// pointer to the same concrete type that was encoded.
func Decode(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("command: decode: %w", err)
	}
	return nil
}
