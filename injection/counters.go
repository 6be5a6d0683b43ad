package injection

import "sync/atomic"

// Counters are the run totals shared by the workers and the leftover flush.
// Reads are only authoritative once every writer has returned.
type Counters struct {
	inserted         atomic.Int64
	expiredOnArrival atomic.Int64
	withoutTTL       atomic.Int64
	retries          atomic.Int64
	reconnects       atomic.Int64
}

// Totals is a point-in-time copy of Counters
type Totals struct {
	Inserted         int64
	ExpiredOnArrival int64
	WithoutTTL       int64
	Retries          int64
	Reconnects       int64
}

// Accounted is the number of records that reached a final outcome. At the
// end of a run it equals the number of accepted SET commands.
func (t Totals) Accounted() int64 {
	return t.Inserted + t.ExpiredOnArrival + t.WithoutTTL
}

func (c *Counters) addBatch(inserted, expired int64) {
	c.inserted.Add(inserted)
	c.expiredOnArrival.Add(expired)
}

// Snapshot reads all counters
func (c *Counters) Snapshot() Totals {
	return Totals{
		Inserted:         c.inserted.Load(),
		ExpiredOnArrival: c.expiredOnArrival.Load(),
		WithoutTTL:       c.withoutTTL.Load(),
		Retries:          c.retries.Load(),
		Reconnects:       c.reconnects.Load(),
	}
}
