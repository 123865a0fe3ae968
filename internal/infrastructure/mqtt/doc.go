// Package mqtt connects the paddy dryer core to the site MQTT broker.
//
// The broker carries two kinds of traffic:
//   - outbound: retained dryer status tiles, batch events and the core's
//     own online/offline status (with a Last Will for crashes)
//   - inbound: interaction signals from terminal kiosks, which keep the
//     operator session alive while the screen is being used
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTerminalActivity(), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
//
// Subscriptions are tracked and restored after a reconnect.
package mqtt
