// Package logging constructs the structured slog logger used across
// Ganymede, driven by the telemetry section of the configuration.
package logging
