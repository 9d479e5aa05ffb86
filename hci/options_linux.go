package hci

import "github.com/fako1024/gatt"

var defaultBTServerOptions = []gatt.Option{
	gatt.LnxMaxConnections(1),
	gatt.LnxDeviceID(-1, true),
}
