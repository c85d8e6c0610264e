// Package codec encodes handler results into response bodies.
package codec

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnsupportedCodec = errors.New("codec: unsupported codec")
	ErrNotProtoMessage  = errors.New("codec: value does not implement proto.Message")
)

// Codec turns values into bytes and back.
type Codec interface {
	// Encode encodes a value to bytes
	Encode(v any) ([]byte, error)

	// Decode decodes bytes into v
	Decode(data []byte, v any) error

	// Name returns the codec name
	Name() string

	// ContentType is the media type of the encoded bytes.
	ContentType() string
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case "json":
		return JSON{}, nil
	case "protobuf":
		return Protobuf{}, nil
	case "protojson":
		return ProtoJSON{}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedCodec, "%q", name)
	}
}

// JSON encodes with encoding/json.
type JSON struct{}

func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return "json" }

func (JSON) ContentType() string { return "application/json" }
