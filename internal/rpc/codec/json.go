// Package codec registers a JSON codec with gRPC so services can exchange
// plain Go structs without generated protobuf code. Clients select it with
// grpc.CallContentSubtype(codec.Name); servers pick it up from the request
// content type once this package is imported.
package codec

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const Name = "json"

type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSON) Name() string { return Name }

func init() {
	encoding.RegisterCodec(JSON{})
}
