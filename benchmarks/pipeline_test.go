package benchmarks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"testing"
	"time"

	redisinjector "github.com/raniellyferreira/redis-injector"
	"github.com/raniellyferreira/redis-injector/protocol"
	"github.com/raniellyferreira/redis-injector/storage"
	"github.com/raniellyferreira/redis-injector/stream"
	"github.com/raniellyferreira/redis-injector/target"
)

// Benchmark scenarios:
// 1. Decoding only
// 2. Decoding plus correlation
// 3. Full injection into an in-process target at several worker counts
// 4. Raw storage writes, the floor for the memory target

type nopLogger struct{}

func (nopLogger) Debug(string, ...redisinjector.Field) {}
func (nopLogger) Info(string, ...redisinjector.Field)  {}
func (nopLogger) Warn(string, ...redisinjector.Field)  {}
func (nopLogger) Error(string, ...redisinjector.Field) {}

// buildStream writes n SET/EXPIREAT pairs with a SELECT every 100 keys
func buildStream(b *testing.B, n, valueSize int) []byte {
	b.Helper()

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	value := bytes.Repeat([]byte("v"), valueSize)
	at := []byte(strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key:%d", i))
		if err := w.WriteCommand("SET", key, value); err != nil {
			b.Fatal(err)
		}
		if err := w.WriteCommand("EXPIREAT", key, at); err != nil {
			b.Fatal(err)
		}
		if i%100 == 0 {
			if err := w.WriteCommand("SELECT", []byte("0")); err != nil {
				b.Fatal(err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		b.Fatal(err)
	}
	return buf.Bytes()
}

func BenchmarkDecoder(b *testing.B) {
	data := buildStream(b, 10000, 64)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		d := stream.NewDecoder(bytes.NewReader(data), nil)
		for {
			if _, err := d.Next(); err == io.EOF {
				break
			} else if err != nil {
				b.Fatal(err)
			}
		}
	}
}

func BenchmarkDecodeAndCorrelate(b *testing.B) {
	data := buildStream(b, 10000, 64)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		d := stream.NewDecoder(bytes.NewReader(data), nil)
		c := stream.NewCorrelator(nil)
		batcher := stream.NewBatcher(200)
		for {
			cmd, err := d.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				b.Fatal(err)
			}
			rec, ok, err := c.Apply(cmd)
			if err != nil {
				b.Fatal(err)
			}
			if ok {
				batcher.Add(rec)
			}
		}
		batcher.Flush()
	}
}

func BenchmarkInjectMemoryTarget(b *testing.B) {
	data := buildStream(b, 10000, 64)

	for _, workers := range []int{1, 4, 16, 50} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				store := storage.NewMemory()
				inj, err := redisinjector.New(
					redisinjector.WithDialer(target.NewMemory(store)),
					redisinjector.WithWorkers(workers),
					redisinjector.WithLogger(nopLogger{}),
				)
				if err != nil {
					b.Fatal(err)
				}
				b.StartTimer()

				if _, err := inj.Run(context.Background(), bytes.NewReader(data)); err != nil {
					b.Fatal(err)
				}

				b.StopTimer()
				store.Close()
				b.StartTimer()
			}
		})
	}
}

func BenchmarkStorageSetParallel(b *testing.B) {
	store := storage.NewMemory()
	defer store.Close()
	value := []byte("value")
	expiry := time.Now().Add(time.Hour)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if err := store.Set("key"+strconv.Itoa(i%100000), value, &expiry); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}
