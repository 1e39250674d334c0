// Package telemetry provides observability for Ganymede.
//
// The logging subpackage constructs the structured slog logger used
// across the codebase. Prometheus metrics live next to the code they
// observe (see the quota package) and are served over HTTP by the watch
// command.
package telemetry
