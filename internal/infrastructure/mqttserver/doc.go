// Package mqttserver runs an in-process MQTT broker.
//
// It lets a single fieldsim binary host both the simulator and the monitor
// over the MQTT transport without an external Mosquitto, and gives the MQTT
// integration tests a broker of their own.
//
//	srv, err := mqttserver.Start(cfg.MQTT.Embedded, log)
//	if err != nil {
//	    return err
//	}
//	defer srv.Close()
//
// The broker accepts every client. It is meant for loopback and lab use.
package mqttserver
