package serial

import (
	"github.com/bjorntas/kthmon/usb"
)

// SearchFilter restricts a Search to a specific device type. The zero value
// matches every usb-serial device present.
type SearchFilter struct {
	Type Type
}

// deviceTypes maps known usb vendor/product pairs to device types. The KTH
// enumerates as an STM32 virtual COM port.
var deviceTypes = map[usb.Identifier]Type{
	{Vendor: 0x0483, Product: 0x5740}: TypeKTH,
}

func checkProductDeviceIDs(vendorID, productID int) Type {
	if t, ok := deviceTypes[usb.Identifier{Vendor: vendorID, Product: productID}]; ok {
		return t
	}
	return TypeUnknown
}

// Search finds all usb-serial devices matching the given filter. It's a
// variable in case you need to override it during tests.
var Search = func(filter SearchFilter) []Description {
	usbDevices := usb.Search(func(vendorID, productID int) bool {
		if filter.Type == "" {
			return true
		}
		return checkProductDeviceIDs(vendorID, productID) == filter.Type
	})
	var results []Description
	for _, dev := range usbDevices {
		results = append(results, Description{
			Type: checkProductDeviceIDs(dev.ID.Vendor, dev.ID.Product),
			Path: dev.Path,
		})
	}
	return results
}
