// Package main is the entry point for the AutoShorts API.
//
// One binary, three uses:
//
//	autoshorts serve                 HTTP API plus the cron ticks
//	autoshorts run scheduler|poller|sweeper
//	                                 a single tick, for external schedulers
//	autoshorts migrate up|down
package main

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	Execute()
}
