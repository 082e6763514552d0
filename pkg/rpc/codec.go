package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is negotiated as the gRPC content-subtype ("application/grpc+json"),
// selected via grpc.CallContentSubtype on the client and picked up
// automatically by the server from the request's content-type header.
const codecName = "json"

// jsonCodec is a grpc/encoding.Codec that marshals messages as JSON instead
// of protobuf wire format. The dispatch messages in this package are plain
// Go structs, not generated protobuf types, so the usual proto codec
// cannot encode them; registering this codec under "json" lets
// google.golang.org/grpc carry them unchanged.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
