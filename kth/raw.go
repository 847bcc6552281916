package kth

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// RawKTH speaks the device's serial protocol and can stand in for a real
// port during testing. Writing a command queues its response; reads drain
// whatever is queued, and an empty queue reads as zero bytes the way a real
// port does once its read timeout passes.
type RawKTH struct {
	mu        sync.Mutex
	pending   bytes.Buffer
	tc1       int16
	tc2       int16
	vdd       int32
	th1       uint16
	th2       uint16
	devID     []byte
	uniqueID  []byte
	firmware  []byte
	failAfter int

	closeCount int32
}

// NewRawKTH returns a fake device with room temperature defaults.
func NewRawKTH() *RawKTH {
	rd := &RawKTH{
		devID:     deviceID,
		uniqueID:  []byte{0x30, 0x42, 0x31, 0x36, 0x33, 0x30, 0x35, 0x34, 0x37, 0x37, 0x0f, 0x42},
		firmware:  []byte{0x01, 0x02},
		failAfter: -1,
	}
	rd.SetTemperature1(23.1)
	rd.SetTemperature2(24.5)
	rd.SetSupplyMicrovolts(3300000)
	rd.SetThermistor1(512)
	rd.SetThermistor2(498)
	return rd
}

// SetTemperature1 sets thermocouple 1 in degrees Celsius, rounded to the
// device's tenth of a degree resolution.
func (rd *RawKTH) SetTemperature1(c float64) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.tc1 = int16(math.Round(c * 10))
}

// SetTemperature2 sets thermocouple 2 in degrees Celsius.
func (rd *RawKTH) SetTemperature2(c float64) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.tc2 = int16(math.Round(c * 10))
}

// SetSupplyMicrovolts sets the reported supply voltage.
func (rd *RawKTH) SetSupplyMicrovolts(uv int32) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.vdd = uv
}

// SetThermistor1 sets the raw ADC value of thermistor channel 1.
func (rd *RawKTH) SetThermistor1(v uint16) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.th1 = v
}

// SetThermistor2 sets the raw ADC value of thermistor channel 2.
func (rd *RawKTH) SetThermistor2(v uint16) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.th2 = v
}

// SetDeviceID overrides the identifier the fake reports, to imitate some
// other serial device answering the handshake.
func (rd *RawKTH) SetDeviceID(id []byte) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.devID = id
}

// SetFailAfter makes reads and writes fail once the given number more have
// succeeded. A negative value, the default, never fails.
func (rd *RawKTH) SetFailAfter(after int) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.failAfter = after
}

func (rd *RawKTH) failNextLocked() bool {
	if rd.failAfter < 0 {
		return false
	}
	if rd.failAfter == 0 {
		return true
	}
	rd.failAfter--
	return false
}

// Write queues the response for each command byte written. Unrecognized
// commands get no response, like a real device staying quiet.
func (rd *RawKTH) Write(p []byte) (int, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.failNextLocked() {
		return 0, errors.New("write failed")
	}
	for _, cmd := range p {
		rd.respondLocked(cmd)
	}
	return len(p), nil
}

func (rd *RawKTH) respondLocked(cmd byte) {
	switch cmd {
	case cmdWelcome:
		rd.pending.WriteString(Welcome)
	case cmdDeviceID:
		rd.pending.Write(rd.devID)
	case cmdUniqueID:
		rd.pending.Write(rd.uniqueID)
	case cmdFirmware:
		rd.pending.Write(rd.firmware)
	case cmdReadTC1:
		rd.respondUint16Locked(uint16(rd.tc1))
	case cmdReadTC2:
		rd.respondUint16Locked(uint16(rd.tc2))
	case cmdReadVDD:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(rd.vdd))
		rd.pending.Write(buf[:])
	case cmdReadTH1:
		rd.respondUint16Locked(rd.th1)
	case cmdReadTH2:
		rd.respondUint16Locked(rd.th2)
	}
}

func (rd *RawKTH) respondUint16Locked(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	rd.pending.Write(buf[:])
}

// Read drains queued response bytes. With nothing queued it reads zero
// bytes, mimicking a serial read timing out.
func (rd *RawKTH) Read(p []byte) (int, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.failNextLocked() {
		return 0, errors.New("read failed")
	}
	if rd.pending.Len() == 0 {
		return 0, nil
	}
	return rd.pending.Read(p)
}

// Close never errors so the fake can be reopened by a test's open function;
// CloseCount reports how many times it happened.
func (rd *RawKTH) Close() error {
	atomic.AddInt32(&rd.closeCount, 1)
	return nil
}

// CloseCount reports how many times the device has been closed.
func (rd *RawKTH) CloseCount() int {
	return int(atomic.LoadInt32(&rd.closeCount))
}
