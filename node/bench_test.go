package node_test

import (
	"context"
	"testing"

	"node-rpc/codec"
	"node-rpc/domain/testentity"
	"node-rpc/node"
	"node-rpc/transport/tcp"
)

var benchDatas = []*testentity.ComplexData{
	{SomeInt: 1, SomeString: "a", SomeArrString: []string{"x", "y"}},
	{SomeInt: 2, SomeString: "b", SomeArrRec: []*testentity.ComplexData{{SomeString: "c"}}},
}

// single goroutine, one call in flight
func BenchmarkSerialCall(b *testing.B) {
	for _, ct := range []codec.CodecType{codec.CodecTypeBinary, codec.CodecTypeJSON} {
		b.Run(ct.String(), func(b *testing.B) {
			_, _, session := pair(b, node.Config{ID: 2, Codec: ct})
			entity := node.GetProxy(session, 1, testentity.NewProxy)
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := entity.Complex(int32(i), nil, "bench", benchDatas).Wait(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// many goroutines sharing one session
func BenchmarkParallelCall(b *testing.B) {
	_, _, session := pair(b, node.Config{ID: 2, Codec: codec.CodecTypeBinary})
	entity := node.GetProxy(session, 1, testentity.NewProxy)
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := entity.Simple(1).Wait(ctx); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkTCPCall(b *testing.B) {
	startNode(b, tcp.New(), node.Config{ID: 1, Codec: codec.CodecTypeBinary}, "127.0.0.1:29090", nil)
	client := startNode(b, tcp.New(), node.Config{ID: 2, Codec: codec.CodecTypeBinary}, "", nil)
	session, err := client.Connect("127.0.0.1:29090").Wait(waitCtx(b))
	if err != nil {
		b.Fatal(err)
	}
	entity := node.GetProxy(session, 1, testentity.NewProxy)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := entity.Simple(int32(i)).Wait(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
