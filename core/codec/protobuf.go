package codec

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

func message(v any) (proto.Message, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, errors.Wrapf(ErrNotProtoMessage, "got %T", v)
	}
	return msg, nil
}

// Protobuf implements the Protocol Buffers binary encoding.
type Protobuf struct{}

func (Protobuf) Encode(v any) ([]byte, error) {
	msg, err := message(v)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

func (Protobuf) Decode(data []byte, v any) error {
	msg, err := message(v)
	if err != nil {
		return err
	}
	return proto.Unmarshal(data, msg)
}

func (Protobuf) Name() string { return "protobuf" }

func (Protobuf) ContentType() string { return "application/x-protobuf" }

// ProtoJSON renders protobuf messages in their canonical JSON mapping.
type ProtoJSON struct{}

func (ProtoJSON) Encode(v any) ([]byte, error) {
	msg, err := message(v)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(msg)
}

func (ProtoJSON) Decode(data []byte, v any) error {
	msg, err := message(v)
	if err != nil {
		return err
	}
	return protojson.Unmarshal(data, msg)
}

func (ProtoJSON) Name() string { return "protojson" }

func (ProtoJSON) ContentType() string { return "application/json" }
