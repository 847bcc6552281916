//go:build darwin

package usb

import (
	"os/exec"

	"howett.net/plist"
)

// ioObjectClass is the io registry class usb-serial devices register under.
const ioObjectClass = "IOUSBHostDevice"

// SearchCmd is the actual system command to run; it is normally ioreg.
// It's a variable so tests can substitute canned registry output.
var SearchCmd = func(ioObjectClass string) []byte {
	cmd := exec.Command("ioreg", "-r", "-c", ioObjectClass, "-a", "-l")
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	return out
}

// Search uses macOS io device APIs to find all usb-serial devices that
// includeDevice accepts by vendor and product identifier.
func Search(includeDevice func(vendorID, productID int) bool) []Description {
	if includeDevice == nil {
		return nil
	}
	out := SearchCmd(ioObjectClass)
	if len(out) == 0 {
		return nil
	}
	var data []map[string]interface{}
	if _, err := plist.Unmarshal(out, &data); err != nil {
		return nil
	}
	var results []Description
	for _, device := range data {
		idVendor, ok := device["idVendor"].(uint64)
		if !ok {
			continue
		}
		idProduct, ok := device["idProduct"].(uint64)
		if !ok {
			continue
		}
		vendorID, productID := int(idVendor), int(idProduct)
		if !includeDevice(vendorID, productID) {
			continue
		}
		dialinDevice, ok := findDialinDevice(device)
		if !ok {
			continue
		}
		results = append(results, Description{
			ID: Identifier{
				Vendor:  vendorID,
				Product: productID,
			},
			Path: dialinDevice,
		})
	}
	return results
}

// findDialinDevice walks a device's registry children looking for the serial
// driver's dial-in path (e.g. /dev/cu.usbmodemXXXX).
func findDialinDevice(device map[string]interface{}) (string, bool) {
	children, ok := device["IORegistryEntryChildren"].([]interface{})
	if !ok {
		return "", false
	}
	for _, child := range children {
		childM, ok := child.(map[string]interface{})
		if !ok {
			continue
		}
		if dialinDevice, ok := childM["IODialinDevice"].(string); ok && dialinDevice != "" {
			return dialinDevice, true
		}
		if dialinDevice, ok := findDialinDevice(childM); ok {
			return dialinDevice, true
		}
	}
	return "", false
}
