// Command redis-injector replays a replication stream read from stdin into a
// Redis-compatible target.
//
//	redis-cli --replica ... | redis-injector redis://localhost:6379/0
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
