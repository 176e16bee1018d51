// Package tree creates and caches the resource subtrees fieldsim publishes
// into.
//
// Layout under the CSE base:
//
//	<cse_base>/<app>                         application
//	<cse_base>/<app>/devices                 container [devices], unbounded
//	<cse_base>/<app>/devices/<sensor>        container [sensor], unbounded
//	<cse_base>/<app>/devices/<sensor>/measurements   [measurements, <profile label>], retention
//	<cse_base>/<app>/devices/<actuator>      container [actuator], unbounded
//	<cse_base>/<app>/devices/<actuator>/commands     [commands, <capabilities>...], retention
//
// The Manager creates each subtree once and returns the same *Container on
// every later call. A subtree whose creation the broker rejected stays failed
// for the life of the Manager.
package tree
