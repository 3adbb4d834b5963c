package config

// TracingConfig holds OTLP trace export settings.
// Traces are exported over OTLP/HTTP to any compatible collector.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"` // host:port of the OTLP/HTTP collector
	Environment string `mapstructure:"environment"`
	ServiceName string `mapstructure:"service_name"`
}
