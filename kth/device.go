package kth

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/bjorntas/kthmon/serial"
)

// Welcome is the greeting the device answers the welcome command with.
const Welcome = "ElmorLabs KTH-USB"

// deviceID is the identifier every KTH reports. Anything else on the port is
// some other serial device.
var deviceID = []byte{0x0d, 0xee}

// probeResponseMax bounds how long an identification response can be.
const probeResponseMax = 100

// DefaultSerialOptions are the device's fixed line settings: 9600 baud 8N1
// with a one second read timeout.
func DefaultSerialOptions() serial.Options {
	return serial.Options{
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    serial.OneStopBit,
		Parity:      serial.NoParity,
		ReadTimeout: 1000,
	}
}

// A Device is a KTH thermometer on a serial path. Every operation opens the
// path fresh and closes it before returning, so a Device holds no descriptor
// between operations.
type Device struct {
	path   string
	opts   serial.Options
	logger golog.Logger
}

// NewDevice returns a device handle for the given serial path. It does not
// touch the device; use Identify to verify something is actually there.
func NewDevice(path string, opts serial.Options, logger golog.Logger) *Device {
	return &Device{path: path, opts: opts, logger: logger}
}

// Path returns the serial path the device was constructed with.
func (d *Device) Path() string {
	return d.path
}

// Identity is a device's self-reported identification.
type Identity struct {
	Welcome  string
	UniqueID []byte
	Firmware []byte
}

// Identify runs the identification handshake: it reads the welcome message,
// verifies the device identifier, and collects the unique ID and firmware
// version. A device that answers with the wrong identifier is rejected.
func (d *Device) Identify(ctx context.Context) (_ Identity, err error) {
	rwc, err := serial.Open(d.path, d.opts)
	if err != nil {
		return Identity{}, errors.Wrapf(err, "opening %s", d.path)
	}
	defer func() {
		err = multierr.Combine(err, rwc.Close())
	}()

	var ident Identity
	welcome, err := probe(ctx, rwc, cmdWelcome)
	if err != nil {
		return Identity{}, errors.Wrap(err, "reading welcome message")
	}
	ident.Welcome = string(welcome)
	d.logger.Debugf("welcome message: %s", ident.Welcome)

	idResp, err := probe(ctx, rwc, cmdDeviceID)
	if err != nil {
		return Identity{}, errors.Wrap(err, "reading device id")
	}
	d.logger.Debugf("device id: %X", idResp)
	if !bytes.Equal(idResp, deviceID) {
		return Identity{}, errors.Errorf("device at %s reported device id %X; not a KTH thermometer", d.path, idResp)
	}

	if ident.UniqueID, err = probe(ctx, rwc, cmdUniqueID); err != nil {
		return Identity{}, errors.Wrap(err, "reading unique id")
	}
	d.logger.Debugf("unique id: %X", ident.UniqueID)
	if ident.Firmware, err = probe(ctx, rwc, cmdFirmware); err != nil {
		return Identity{}, errors.Wrap(err, "reading firmware version")
	}
	d.logger.Debugf("firmware version: %X", ident.Firmware)
	return ident, nil
}

// Collect reads every register once, in table order, and returns the decoded
// readings. Each reading is stamped when its register is requested.
func (d *Device) Collect(ctx context.Context) (_ []Reading, err error) {
	rwc, err := serial.Open(d.path, d.opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", d.path)
	}
	defer func() {
		err = multierr.Combine(err, rwc.Close())
	}()

	readings := make([]Reading, 0, len(Registers))
	for _, reg := range Registers {
		ts := time.Now()
		if _, err := rwc.Write([]byte{reg.Command}); err != nil {
			return nil, errors.Wrapf(err, "requesting %s", reg.Name)
		}
		readCtx, cancel := d.readContext(ctx)
		data, err := utils.ReadBytes(readCtx, rwc, reg.Width)
		cancel()
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", reg.Name)
		}
		value, err := reg.Decode(data)
		if err != nil {
			return nil, err
		}
		readings = append(readings, Reading{Time: ts, ID: reg.Name, Unit: reg.Unit, Value: value})
	}
	return readings, nil
}

// readContext bounds a register read by the configured read timeout. Register
// responses are fixed width, so a response still short of its width by then
// means the device went quiet mid-answer.
func (d *Device) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.opts.ReadTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(d.opts.ReadTimeout)*time.Millisecond)
}

// probe writes a single identification command and drains however much the
// device answers with.
func probe(ctx context.Context, rwc io.ReadWriteCloser, cmd byte) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if _, err := rwc.Write([]byte{cmd}); err != nil {
		return nil, err
	}
	return readAvailable(rwc, probeResponseMax)
}

// readAvailable reads until the device goes quiet or max bytes have arrived.
// Serial reads return zero bytes only once the port's read timeout passes
// with nothing new, which is what ends a variable-length response.
func readAvailable(r io.Reader, max int) ([]byte, error) {
	buf := make([]byte, max)
	pos := 0
	for pos < max {
		n, err := r.Read(buf[pos:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		pos += n
	}
	return buf[:pos], nil
}
