package cache

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns records into cache payloads and back.
type Codec interface {
	Marshal(record map[string]any) ([]byte, error)
	Unmarshal(data []byte) (map[string]any, error)
	Name() string
}

var errEmptyPayload = errors.New("payload does not hold a record")

// JSONCodec stores records as JSON text. Numbers decode as float64.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(record map[string]any) ([]byte, error) {
	return json.Marshal(record)
}

func (JSONCodec) Unmarshal(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errEmptyPayload
	}
	return out, nil
}

// MsgpackCodec stores records as msgpack. Integers keep their integer type
// through a round trip.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Marshal(record map[string]any) ([]byte, error) {
	return msgpack.Marshal(record)
}

func (MsgpackCodec) Unmarshal(data []byte) (map[string]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errEmptyPayload
	}
	return out, nil
}

// CodecByName returns the codec registered under name. An empty name selects
// JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, &ConfigError{Field: "Codec", Message: "unknown codec " + name}
	}
}
