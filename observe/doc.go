// Package observe sets up the OpenTelemetry backend used by the GenAI
// instrumentation: tracer and meter providers with their exporters, a
// structured logger, and the YAML configuration that drives them.
//
// It performs no instrumentation itself. The instrument package consumes an
// Observer to obtain its tracer, meter and logger.
package observe
