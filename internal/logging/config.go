package logging

// Config is the `log` section of the service config.
type Config struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	// MOTIONSENSE_LOG_LEVEL overrides it.
	Level string `yaml:"level"`
	// Format is "text" (default) or "json".
	Format string `yaml:"format"`
	// BufferLines bounds the in-memory tail served over HTTP.
	BufferLines int `yaml:"buffer_lines"`
}
