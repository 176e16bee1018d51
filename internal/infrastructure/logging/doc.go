// Package logging provides structured logging for fieldsim.
//
// It wraps Go's log/slog so every component logs the same way: JSON in
// deployments, text when running the simulator by hand, and a fixed set of
// default attributes (service, version, and the running role).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	samplerLog := log.Component("sampler")
//	samplerLog.Info("tick", "sensor", "Temp", "value", 45)
//
// Never log broker passwords or the InfluxDB token.
package logging
