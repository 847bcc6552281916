//go:build !linux && !darwin

package usb

// Search returns no devices on platforms without usb-serial discovery support.
func Search(includeDevice func(vendorID, productID int) bool) []Description {
	return nil
}
