package hci

import "github.com/fako1024/gatt"

var defaultBTServerOptions = []gatt.Option{
	gatt.MacDeviceRole(gatt.PeripheralManager),
}
