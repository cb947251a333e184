package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a gRPC codec that marshals wire messages as plain JSON
// rather than protobuf. Every request/response struct in this package
// is a plain Go struct, not a protoc-generated message, so it is
// registered under its own content-subtype ("json") rather than
// impersonating gRPC's built-in "proto" codec — a request carries
// "application/grpc+json" on the wire and the server picks the codec
// by that subtype automatically. Client calls opt into it once, at
// dial time, via grpc.CallContentSubtype (see client.go's connFor).
type jsonCodec struct{}

const codecName = "json"

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
