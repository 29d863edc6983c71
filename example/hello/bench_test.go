package hello

import (
	"context"
	"testing"
	"time"

	"mini-grpc/client"
	"mini-grpc/codec"
	"mini-grpc/conn"
	"mini-grpc/message"
	"mini-grpc/server"
)

func setupGreeter(b *testing.B) *client.Client {
	b.Helper()
	s := server.NewServer()
	if err := s.AddService(NewGreeterService(Greeter{})); err != nil {
		b.Fatal(err)
	}
	ln, err := conn.Listen(conn.MustParseAddress("127.0.0.1:0"))
	if err != nil {
		b.Fatal(err)
	}
	go s.Serve(context.Background(), ln) //nolint:errcheck

	c, err := client.New(client.WithTarget(ln.Addr().String()), client.WithCodec(codec.JSON{}))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		c.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.Shutdown(ctx) //nolint:errcheck
	})
	return c
}

func BenchmarkSerialCall(b *testing.B) {
	g := NewGreeterClient(setupGreeter(b))
	req := message.NewRequest(HelloRequest{Name: "Volo"})
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := g.SayHello(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

// Calls share one HTTP/2 connection.
func BenchmarkConcurrentCall(b *testing.B) {
	g := NewGreeterClient(setupGreeter(b))
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := g.SayHello(context.Background(), message.NewRequest(HelloRequest{Name: "Volo"})); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func benchmarkCodec(b *testing.B, cdc codec.Codec) {
	in := HelloRequest{Name: "Volo"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := cdc.Marshal(in)
		if err != nil {
			b.Fatal(err)
		}
		var out HelloRequest
		if err := cdc.Unmarshal(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodecJSON(b *testing.B) {
	benchmarkCodec(b, codec.JSON{})
}
