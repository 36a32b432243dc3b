package observe

import "errors"

// Sentinel errors for telemetry configuration.
var (
	// ErrServiceNameRequired is returned when Config.ServiceName is empty.
	ErrServiceNameRequired = errors.New("observe: service name is required")

	// ErrUnknownExporter is returned for an unrecognized exporter name.
	ErrUnknownExporter = errors.New("observe: unknown exporter")

	// ErrInvalidSamplePct is returned when the trace sample percentage is
	// outside [0.0, 1.0].
	ErrInvalidSamplePct = errors.New("observe: sample percentage must be between 0.0 and 1.0")

	// ErrUnknownLogLevel is returned for an unrecognized log level.
	ErrUnknownLogLevel = errors.New("observe: unknown log level")
)
