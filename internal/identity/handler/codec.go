package handler

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of AuthService messages ("application/grpc+json").
const CodecName = "json"

// Codec marshals AuthService messages as JSON; the service has no generated protobuf types.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (Codec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
