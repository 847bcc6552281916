// Package kth provides access to Elmor Labs KTH-USB thermometers over their
// usb-serial interface.
package kth

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Identification commands understood by the device.
const (
	cmdWelcome  byte = 0x00
	cmdDeviceID byte = 0x01
	cmdUniqueID byte = 0x02
	cmdFirmware byte = 0x03
)

// Register read commands understood by the device.
const (
	cmdReadTC1 byte = 0x10
	cmdReadTC2 byte = 0x11
	cmdReadVDD byte = 0x12
	cmdReadTH1 byte = 0x14
	cmdReadTH2 byte = 0x15
)

// Units a register's decoded value can be expressed in.
const (
	UnitTemperature = "T"
	UnitMicrovolts  = "uV"
	UnitADC         = "ADC value"
)

// Register describes one readable measurement register: the command that
// requests it, how many bytes the device answers with, and how to interpret
// them.
type Register struct {
	Name       string
	Command    byte
	Width      int
	Multiplier float64
	Unit       string
	Signed     bool
}

// Registers is the device's full register table, in read order. TC1 and TC2
// are the two K-type thermocouple channels, VDD is the supply voltage, and
// TH1 and TH2 are the raw onboard thermistor channels.
var Registers = [...]Register{
	{Name: "TC1", Command: cmdReadTC1, Width: 2, Multiplier: 0.1, Unit: UnitTemperature, Signed: true},
	{Name: "TC2", Command: cmdReadTC2, Width: 2, Multiplier: 0.1, Unit: UnitTemperature, Signed: true},
	{Name: "VDD", Command: cmdReadVDD, Width: 4, Multiplier: 1, Unit: UnitMicrovolts, Signed: true},
	{Name: "TH1", Command: cmdReadTH1, Width: 2, Multiplier: 1, Unit: UnitADC, Signed: false},
	{Name: "TH2", Command: cmdReadTH2, Width: 2, Multiplier: 1, Unit: UnitADC, Signed: false},
}

// Decode interprets a raw little-endian register response and scales it into
// the register's unit.
func (r Register) Decode(data []byte) (float64, error) {
	if len(data) != r.Width {
		return 0, errors.Errorf("expected %d byte response for %s, got %d", r.Width, r.Name, len(data))
	}
	var raw int64
	switch r.Width {
	case 2:
		v := binary.LittleEndian.Uint16(data)
		if r.Signed {
			raw = int64(int16(v))
		} else {
			raw = int64(v)
		}
	case 4:
		v := binary.LittleEndian.Uint32(data)
		if r.Signed {
			raw = int64(int32(v))
		} else {
			raw = int64(v)
		}
	default:
		return 0, errors.Errorf("register %s has unsupported width %d", r.Name, r.Width)
	}
	return float64(raw) * r.Multiplier, nil
}
