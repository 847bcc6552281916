package kth

import (
	"testing"

	"go.viam.com/test"
)

func TestRawKTHProtocol(t *testing.T) {
	raw := NewRawKTH()

	n, err := raw.Write([]byte{cmdWelcome})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)

	buf := make([]byte, 100)
	n, err = raw.Read(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(buf[:n]), test.ShouldEqual, Welcome)

	// drained, so the port is quiet
	n, err = raw.Read(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 0)

	_, err = raw.Write([]byte{cmdDeviceID})
	test.That(t, err, test.ShouldBeNil)
	n, err = raw.Read(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, buf[:n], test.ShouldResemble, []byte{0x0d, 0xee})

	raw.SetTemperature1(-0.1)
	_, err = raw.Write([]byte{cmdReadTC1})
	test.That(t, err, test.ShouldBeNil)
	n, err = raw.Read(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, buf[:n], test.ShouldResemble, []byte{0xff, 0xff})

	// commands the device does not know go unanswered
	_, err = raw.Write([]byte{0x42})
	test.That(t, err, test.ShouldBeNil)
	n, err = raw.Read(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 0)
}

func TestRawKTHFailAfter(t *testing.T) {
	raw := NewRawKTH()
	raw.SetFailAfter(2)

	buf := make([]byte, 8)
	_, err := raw.Write([]byte{cmdReadTC1})
	test.That(t, err, test.ShouldBeNil)
	_, err = raw.Read(buf)
	test.That(t, err, test.ShouldBeNil)

	_, err = raw.Write([]byte{cmdReadTC1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "write failed")
	_, err = raw.Read(buf)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "read failed")

	test.That(t, raw.Close(), test.ShouldBeNil)
	test.That(t, raw.Close(), test.ShouldBeNil)
	test.That(t, raw.CloseCount(), test.ShouldEqual, 2)
}
