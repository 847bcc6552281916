//go:build linux

package usb

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysPaths are the sysfs directories searched for usb-serial capable
// devices. It's a variable so tests can point the search at fixtures.
var SysPaths = []string{"/sys/bus/usb-serial/devices", "/sys/bus/usb/drivers/cdc_acm"}

// Search uses sysfs to find all usb-serial devices that includeDevice
// accepts by vendor and product identifier.
func Search(includeDevice func(vendorID, productID int) bool) []Description {
	if includeDevice == nil {
		return nil
	}
	var results []Description
	for _, sysPath := range SysPaths {
		entries, err := os.ReadDir(sysPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			// sysfs device entries are always symlinks into the device tree.
			if entry.Type()&os.ModeSymlink == 0 {
				continue
			}
			devPath, err := filepath.EvalSymlinks(filepath.Join(sysPath, entry.Name()))
			if err != nil {
				continue
			}
			id, ok := readProductInfo(filepath.Join(filepath.Dir(devPath), "uevent"))
			if !ok || !includeDevice(id.Vendor, id.Product) {
				continue
			}
			ttyName, ok := resolveTTYName(entry.Name(), devPath)
			if !ok {
				continue
			}
			results = append(results, Description{ID: id, Path: filepath.Join("/dev", ttyName)})
		}
	}
	return results
}

// readProductInfo extracts the vendor/product pair from a sysfs uevent file.
func readProductInfo(ueventPath string) (Identifier, bool) {
	ueventFile, err := os.Open(ueventPath)
	if err != nil {
		return Identifier{}, false
	}
	defer ueventFile.Close()
	reader := bufio.NewReader(ueventFile)
	for {
		line, _, err := reader.ReadLine()
		if err != nil {
			return Identifier{}, false
		}
		const productPrefix = "PRODUCT="
		lineStr := string(line)
		if !strings.HasPrefix(lineStr, productPrefix) {
			continue
		}
		productInfoParts := strings.Split(strings.TrimPrefix(lineStr, productPrefix), "/")
		if len(productInfoParts) < 2 {
			continue
		}
		vendorID, err := strconv.ParseInt(productInfoParts[0], 16, 64)
		if err != nil {
			continue
		}
		productID, err := strconv.ParseInt(productInfoParts[1], 16, 64)
		if err != nil {
			continue
		}
		return Identifier{Vendor: int(vendorID), Product: int(productID)}, true
	}
}

// resolveTTYName maps a sysfs device entry to its tty name. usb-serial
// entries are named after their tty already; cdc_acm interface entries have
// a tty subdirectory naming it.
func resolveTTYName(entryName, devPath string) (string, bool) {
	if strings.HasPrefix(entryName, "tty") {
		return entryName, true
	}
	ttyEntries, err := os.ReadDir(filepath.Join(devPath, "tty"))
	if err != nil || len(ttyEntries) == 0 {
		return "", false
	}
	return ttyEntries[0].Name(), true
}
