package roomrpc

import "encoding/json"

// jsonCodec replaces connect's protojson codec so plain Go structs can be
// sent with the Connect protocol under the "json" codec name.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
