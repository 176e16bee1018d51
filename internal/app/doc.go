// Package app wires the core components into the two fieldsim
// applications.
//
// The Simulator registers an application, creates a subtree per sensor and
// actuator, samples readings on a tick and applies the commands its
// actuators receive. The Monitor discovers measurement and commands
// containers, subscribes to the measurements and lets the controller
// command matching actuators.
//
// Both run until their context is cancelled and can share one broker hub
// in a single process or talk over MQTT from separate processes.
package app
