// Package profile holds the static table of sensor profiles used by the
// sampler: value range, offset, unit, display type and container label for
// each kind of simulated sensor.
//
// Two tables ship built in, matching the deployments the simulator was
// written for:
//
//   - air quality: temperature, humidity, PM2.5, PM10, H2S
//   - smart farm: nutrient solution temperature, environmental temperature,
//     humidity and soil pH (raw value divided by 10)
//
// Profiles are immutable once the Registry is built. Configuration may add
// profiles or override built-ins by name.
package profile
