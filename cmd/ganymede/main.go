// Ganymede is a windowed admission-control daemon for metered LLM APIs.
//
// It tracks per-model token and request consumption over a rolling minute
// window and a local-midnight day window, persists the counters across
// restarts, and gates callers when a ceiling is reached.
//
// Usage:
//
//	# Watch quota state live with the default configuration
//	ganymede watch
//
//	# Watch with a custom configuration file
//	ganymede watch --config /path/to/config.yaml
//
//	# Show the current quota snapshot
//	ganymede status
//
//	# Show recent usage history
//	ganymede history --limit 50
//
//	# Validate configuration and catalog files
//	ganymede validate
//
//	# Show version information
//	ganymede version
package main

func main() {
	Execute()
}
