package storage_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-injector/storage"
)

func TestMemoryStorage(t *testing.T) {
	s := storage.NewMemory()
	defer s.Close()

	if err := s.Set("key1", []byte("value1"), nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, exists := s.Get("key1")
	if !exists {
		t.Fatal("Expected key to exist")
	}
	if string(value) != "value1" {
		t.Errorf("Get() = %s, want value1", value)
	}

	if _, exists := s.Get("nonexistent"); exists {
		t.Fatal("Expected key to not exist")
	}

	if got := s.TTL("key1"); got != -1*time.Second {
		t.Errorf("TTL() = %v, want -1s for a key without expiry", got)
	}
	if got := s.TTL("nonexistent"); got != -2*time.Second {
		t.Errorf("TTL() = %v, want -2s for a missing key", got)
	}
}

func TestMemoryStorageExpiry(t *testing.T) {
	s := storage.NewMemory()
	defer s.Close()

	past := time.Now().Add(-1 * time.Hour)
	if err := s.Set("expired", []byte("value"), &past); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, exists := s.Get("expired"); exists {
		t.Fatal("Expected expired key to not exist")
	}

	future := time.Now().Add(10 * time.Second)
	if err := s.Set("future", []byte("value"), &future); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, exists := s.Get("future"); !exists {
		t.Fatal("Expected future key to exist")
	}

	ttl := s.TTL("future")
	if ttl <= 9*time.Second || ttl > 10*time.Second {
		t.Errorf("TTL() = %v, want ~10s", ttl)
	}
}

func TestMemoryStorageOverwriteClearsExpiry(t *testing.T) {
	s := storage.NewMemory()
	defer s.Close()

	future := time.Now().Add(time.Hour)
	s.Set("k", []byte("v1"), &future)
	s.Set("k", []byte("v2"), nil)

	if got := s.TTL("k"); got != -1*time.Second {
		t.Errorf("TTL() = %v, want -1s after plain overwrite", got)
	}
	value, _ := s.Get("k")
	if string(value) != "v2" {
		t.Errorf("Get() = %s, want v2", value)
	}
}

func TestMemoryStorageDelExists(t *testing.T) {
	s := storage.NewMemory()
	defer s.Close()

	s.Set("a", []byte("1"), nil)
	s.Set("b", []byte("2"), nil)

	if n := s.Exists("a", "b", "c"); n != 2 {
		t.Errorf("Exists() = %d, want 2", n)
	}
	if n := s.Del("a", "c"); n != 1 {
		t.Errorf("Del() = %d, want 1", n)
	}
	if n := s.KeyCount(); n != 1 {
		t.Errorf("KeyCount() = %d, want 1", n)
	}

	if err := s.FlushAll(); err != nil {
		t.Fatal(err)
	}
	if n := s.KeyCount(); n != 0 {
		t.Errorf("KeyCount() after FlushAll = %d, want 0", n)
	}
}

func TestMemoryStorageBackgroundCleanup(t *testing.T) {
	s := storage.NewMemory(
		storage.WithShardCount(4),
		storage.WithCleanupConfig(storage.CleanupConfig{
			Interval:         10 * time.Millisecond,
			SampleSize:       50,
			MaxRounds:        10,
			ExpiredThreshold: 0.1,
		}),
	)
	defer s.Close()

	soon := time.Now().Add(20 * time.Millisecond)
	for i := 0; i < 100; i++ {
		s.Set(fmt.Sprintf("k%d", i), []byte("v"), &soon)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Info()["expired_keys"].(int64) == 100 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expired_keys = %v, want 100", s.Info()["expired_keys"])
}

func TestMemoryStorageInfo(t *testing.T) {
	s := storage.NewMemory()
	defer s.Close()

	future := time.Now().Add(time.Hour)
	s.Set("a", []byte("12345"), &future)
	s.Set("b", []byte("1"), nil)

	info := s.Info()
	if info["keys"].(int64) != 2 {
		t.Errorf("keys = %v, want 2", info["keys"])
	}
	if info["expires"].(int64) != 1 {
		t.Errorf("expires = %v, want 1", info["expires"])
	}
	if info["memory_usage"].(int64) != 8 {
		t.Errorf("memory_usage = %v, want 8", info["memory_usage"])
	}
}

func TestMemoryStorageConcurrentWrites(t *testing.T) {
	s := storage.NewMemory()
	defer s.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Set(fmt.Sprintf("w%d:%d", w, i), []byte("v"), nil)
			}
		}(w)
	}
	wg.Wait()

	if n := s.KeyCount(); n != 4000 {
		t.Errorf("KeyCount() = %d, want 4000", n)
	}
}

func TestMemoryStorageCloseIsIdempotent(t *testing.T) {
	s := storage.NewMemory()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
