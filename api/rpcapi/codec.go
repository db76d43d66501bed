package rpcapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(JSONCodec{})
	// Also register under "proto" so that standard gRPC clients (e.g. Python
	// grpcio) that send Content-Type: application/grpc+proto can communicate
	// with this server. Our hand-written structs use JSON struct tags rather
	// than the protobuf binary wire format, so we use JSON for both codecs.
	encoding.RegisterCodec(protoNamedJSONCodec{})
}

// JSONCodec is a gRPC codec that uses encoding/json for marshaling and
// unmarshaling. It allows the hand-written RPC structs (which carry JSON
// struct tags but do not implement proto.Message) to be used over a real
// gRPC transport between the gateway and a tenant worker.
//
// Usage:
//
//	conn, _ := grpc.NewClient(addr,
//	    grpc.WithDefaultCallOptions(grpc.ForceCodec(rpcapi.JSONCodec{})),
//	    ...)
type JSONCodec struct{}

// Name returns the content-subtype identifier used in the gRPC Content-Type
// header: "application/grpc+json".
func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// protoNamedJSONCodec is identical to JSONCodec but registers itself as
// "proto" so clients that negotiate Content-Type: application/grpc+proto
// still get a payload they can decode as JSON.
type protoNamedJSONCodec struct{}

func (protoNamedJSONCodec) Name() string { return "proto" }

func (protoNamedJSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (protoNamedJSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
