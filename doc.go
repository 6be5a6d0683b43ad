// Package redisinjector replays a Redis replication stream into a target
// store.
//
// The input is a RESP stream in which each key is written with SET and later
// given an absolute expiry with EXPIREAT. The injector pairs each SET with
// its EXPIREAT, converts the expiry into a relative TTL at write time, and
// writes the result as pipelined SET ... EX commands from a pool of
// connections. Keys whose expiry has already passed are skipped. Keys that
// never receive an EXPIREAT are written once at the end according to the
// leftover policy.
//
// Basic usage:
//
//	inj, err := redisinjector.New(
//		redisinjector.WithTarget("redis://localhost:6379/0"),
//		redisinjector.WithWorkers(32),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	report, err := inj.Run(context.Background(), os.Stdin)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("inserted=%d expired=%d without_ttl=%d\n",
//		report.Inserted, report.ExpiredOnArrival, report.WithoutTTL)
//
// Every accepted SET ends in exactly one of the three counters, so
// report.Inserted + report.ExpiredOnArrival + report.WithoutTTL equals
// report.Commands.Sets after a successful run.
//
// A target of "memory://" writes into an in-process store instead, which is
// useful for dry runs.
package redisinjector
