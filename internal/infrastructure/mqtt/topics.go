package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every fieldsim topic.
const DefaultTopicPrefix = "fieldsim"

// Topic categories under the prefix.
const (
	categoryResource = "resource"
	categoryContent  = "content"
	categorySystem   = "system"
)

// Topics provides builders for fieldsim MQTT topics under a configurable prefix.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Resource paths map one-to-one onto topic levels:
//
//	topics := mqtt.NewTopics("fieldsim")
//	topics.Content("onem2m/TestIPE/devices/Temp/measurements")
//	// Returns: "fieldsim/content/onem2m/TestIPE/devices/Temp/measurements"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for the given prefix. An empty prefix
// selects DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Resource returns the retained announcement topic for a resource node.
//
// Example: fieldsim/resource/onem2m/TestIPE/devices
func (t Topics) Resource(path string) string {
	return fmt.Sprintf("%s/%s/%s", t.Prefix(), categoryResource, strings.Trim(path, "/"))
}

// Content returns the topic new content instances of a container travel on.
//
// Example: fieldsim/content/onem2m/TestIPE/devices/Fan/commands
func (t Topics) Content(path string) string {
	return fmt.Sprintf("%s/%s/%s", t.Prefix(), categoryContent, strings.Trim(path, "/"))
}

// SystemStatus returns the online/offline status topic used for LWT.
//
// Example: fieldsim/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/%s/status", t.Prefix(), categorySystem)
}

// AllResources returns a pattern matching every resource announcement.
//
// Pattern: fieldsim/resource/#
func (t Topics) AllResources() string {
	return fmt.Sprintf("%s/%s/#", t.Prefix(), categoryResource)
}

// ResourcePath extracts the resource path from a resource topic.
// It reports false when the topic is not a resource announcement.
func (t Topics) ResourcePath(topic string) (string, bool) {
	return t.trim(topic, categoryResource)
}

// ContentPath extracts the container path from a content topic.
// It reports false when the topic is not a content topic.
func (t Topics) ContentPath(topic string) (string, bool) {
	return t.trim(topic, categoryContent)
}

func (t Topics) trim(topic, category string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix()+"/"+category+"/")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}
