// Package mqttbroker implements resource.Broker over MQTT.
//
// Every participant keeps a local mirror of the resource tree. Creating a
// node publishes a retained JSON announcement on
//
//	<prefix>/resource/<path>
//
// and all participants subscribe to <prefix>/resource/# to replay those
// announcements into their mirror, so late joiners see the whole tree.
// Discovery queries the mirror.
//
// Content instances travel, not retained, on
//
//	<prefix>/content/<path>
//
// and subscribing to a container subscribes to its content topic.
// Announcements arrive asynchronously: a node created by another
// participant becomes discoverable once its announcement is delivered.
package mqttbroker
