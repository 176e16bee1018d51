// Package controller turns measurements into actuator commands.
//
// A Rule watches one measurement type. A value above High produces the
// rule's high directive, a value below Low its low directive, anything in
// between nothing. The default rule switches fans on above 30 and off
// below 18 degrees.
//
// Produced commands fan out to every actuator in the ActuatorRegistry the
// rule's Selector accepts. Actuators are registered from command container
// discovery and never removed.
//
// The controller keeps no state between readings: two qualifying readings
// in a row dispatch two commands.
package controller
