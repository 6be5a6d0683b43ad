package main

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DatabaseStats is one dbN line of INFO keyspace
type DatabaseStats struct {
	Keys    int64
	Expires int64
	AvgTTL  int64 // milliseconds, 0 if absent
}

// Keyspace maps database number to its stats
type Keyspace map[int]DatabaseStats

var dbLine = regexp.MustCompile(`^db(\d+):keys=(\d+),expires=(\d+)(?:,avg_ttl=(\d+))?`)

func parseKeyspace(info string) Keyspace {
	ks := make(Keyspace)
	for _, line := range strings.Split(info, "\n") {
		m := dbLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		db, _ := strconv.Atoi(m[1])
		stats := DatabaseStats{}
		stats.Keys, _ = strconv.ParseInt(m[2], 10, 64)
		stats.Expires, _ = strconv.ParseInt(m[3], 10, 64)
		if m[4] != "" {
			stats.AvgTTL, _ = strconv.ParseInt(m[4], 10, 64)
		}
		ks[db] = stats
	}
	return ks
}

// compareKeyspace reports every database in either keyspace. Key and expire
// count mismatches are differences; avg_ttl drift is only noted since TTLs
// keep running down between the two reads.
func compareKeyspace(ref, sut Keyspace, filter map[int]bool) (lines []string, differences int) {
	seen := make(map[int]bool)
	for db := range ref {
		seen[db] = true
	}
	for db := range sut {
		seen[db] = true
	}

	dbs := make([]int, 0, len(seen))
	for db := range seen {
		if filter == nil || filter[db] {
			dbs = append(dbs, db)
		}
	}
	sort.Ints(dbs)

	for _, db := range dbs {
		r, inRef := ref[db]
		s, inSut := sut[db]

		switch {
		case !inRef:
			lines = append(lines, fmt.Sprintf("db%d: only in system: keys=%d,expires=%d", db, s.Keys, s.Expires))
			differences++
		case !inSut:
			lines = append(lines, fmt.Sprintf("db%d: missing in system: keys=%d,expires=%d", db, r.Keys, r.Expires))
			differences++
		default:
			ok := true
			if r.Keys != s.Keys {
				lines = append(lines, fmt.Sprintf("db%d: keys differ: ref=%d sut=%d", db, r.Keys, s.Keys))
				differences++
				ok = false
			}
			if r.Expires != s.Expires {
				lines = append(lines, fmt.Sprintf("db%d: expires differ: ref=%d sut=%d", db, r.Expires, s.Expires))
				differences++
				ok = false
			}
			if r.AvgTTL != s.AvgTTL {
				lines = append(lines, fmt.Sprintf("db%d: avg_ttl differs: ref=%d sut=%d", db, r.AvgTTL, s.AvgTTL))
			}
			if ok {
				lines = append(lines, fmt.Sprintf("db%d: match: keys=%d,expires=%d", db, r.Keys, r.Expires))
			}
		}
	}
	return lines, differences
}
