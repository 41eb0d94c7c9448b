package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Codec serves the connect "json" content type for plain Go structs.
// Well-known protobuf types (emptypb, timestamppb, ...) go through protojson.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	if pm, ok := msg.(proto.Message); ok {
		return protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(pm)
	}
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if pm, ok := msg.(proto.Message); ok {
		if len(data) == 0 {
			return nil
		}
		return protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(data, pm)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// ClientOptions pins clients to the JSON codec.
func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{connect.WithCodec(Codec{})}
}

// HandlerOptions registers the JSON codec on a handler.
func HandlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{connect.WithCodec(Codec{})}
}
