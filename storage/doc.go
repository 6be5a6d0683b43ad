// Package storage provides the in-memory key/value store used as a
// rehearsal target for injection runs and as the backend of the sink
// server.
//
// Only string values are supported; each key carries an optional absolute
// expiry. Expired keys are invisible to readers immediately and are
// reclaimed in the background by a sampling sweep.
//
// Basic usage:
//
//	store := storage.NewMemory()
//	defer store.Close()
//
//	expiry := time.Now().Add(time.Minute)
//	_ = store.Set("key", []byte("value"), &expiry)
//	value, exists := store.Get("key")
package storage
