package codec

import "google.golang.org/protobuf/proto"

// Protobuf serializes proto messages. New returns an empty message to decode
// into, e.g. func() *pb.User { return &pb.User{} }.
type Protobuf[T proto.Message] struct {
	New func() T
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{New: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) { return proto.Marshal(v) }
func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.New()
	err := proto.Unmarshal(b, m)
	return m, err
}
