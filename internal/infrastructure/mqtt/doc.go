// Package mqtt provides the MQTT client behind fieldsim's MQTT transport.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Publishing with QoS and retained flags
//   - Subscriptions that survive reconnects
//   - A retained online/offline status with Last Will
//
// # Topic layout
//
// All topics share a configurable prefix (default "fieldsim"):
//
//	fieldsim/resource/<path>   retained JSON node announcements
//	fieldsim/content/<path>    content instances pushed into containers
//	fieldsim/system/status     online/offline status (LWT)
//
// Use Topics rather than formatting strings by hand.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllResources(), client.QoS(),
//	    func(topic string, payload []byte) error {
//	        path, _ := topics.ResourcePath(topic)
//	        return mirror(path, payload)
//	    })
package mqtt
