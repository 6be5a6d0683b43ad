// Command info-diff compares INFO keyspace between a reference Redis and the
// target of an injection run.
//
//	info-diff --ref=localhost:6379 --sut=redis://localhost:6380 --dbs=0,2
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

func main() {
	refAddr := flag.String("ref", "", "Reference endpoint (host:port or redis:// URL)")
	sutAddr := flag.String("sut", "", "System under test endpoint (host:port or redis:// URL)")
	dbsFlag := flag.String("dbs", "", "Comma-separated database numbers to compare (default all)")
	timeout := flag.Duration("timeout", 5*time.Second, "Timeout for each INFO call")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "Usage: info-diff --ref=ENDPOINT --sut=ENDPOINT [--dbs=0,1]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *refAddr == "" || *sutAddr == "" {
		flag.Usage()
		os.Exit(2)
	}

	dbFilter, err := parseDBFilter(*dbsFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ref, err := fetchKeyspace(*refAddr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reference %s: %v\n", *refAddr, err)
		os.Exit(1)
	}
	sut, err := fetchKeyspace(*sutAddr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "system under test %s: %v\n", *sutAddr, err)
		os.Exit(1)
	}

	fmt.Printf("Comparing %s (reference) with %s\n\n", *refAddr, *sutAddr)
	lines, differences := compareKeyspace(ref, sut, dbFilter)
	for _, line := range lines {
		fmt.Println(line)
	}

	fmt.Println()
	if differences > 0 {
		fmt.Printf("FAILURE: %d differences\n", differences)
		os.Exit(1)
	}
	fmt.Println("OK: keyspaces match")
}

func parseDBFilter(s string) (map[int]bool, error) {
	if s == "" {
		return nil, nil
	}
	filter := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		db, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || db < 0 {
			return nil, fmt.Errorf("invalid database number %q", part)
		}
		filter[db] = true
	}
	return filter, nil
}

// fetchKeyspace runs INFO keyspace through go-redis
func fetchKeyspace(addr string, timeout time.Duration) (Keyspace, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.DisableIdentity = true

	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	info, err := client.Info(ctx, "keyspace").Result()
	if err != nil {
		return nil, err
	}
	return parseKeyspace(info), nil
}
