package kth

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	clk "github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/bjorntas/kthmon/serial"
)

func TestMonitorConfigValidate(t *testing.T) {
	logger := golog.NewTestLogger(t)

	err := (MonitorConfig{}).Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "interval")

	err = (MonitorConfig{Interval: time.Second}).Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "logger")

	test.That(t, (MonitorConfig{Interval: time.Second, Logger: logger}).Validate(), test.ShouldBeNil)

	_, err = NewMonitor(nil, MonitorConfig{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMonitorRun(t *testing.T) {
	logger := golog.NewTestLogger(t)
	prevOpen := serial.Open
	defer func() {
		serial.Open = prevOpen
	}()

	raw := NewRawKTH()
	serial.Open = func(devicePath string, options serial.Options) (io.ReadWriteCloser, error) {
		return raw, nil
	}
	dev := NewDevice("somepath", DefaultSerialOptions(), logger)

	tempDir := testutils.TempDirT(t, "", "")
	defer os.RemoveAll(tempDir)
	logPath := filepath.Join(tempDir, "temperature_measurements.csv")

	mockClock := clk.NewMock()
	batches := make(chan []Reading)
	monitor, err := NewMonitor(dev, MonitorConfig{
		Interval:   time.Second,
		WindowSize: 12,
		Log:        NewLog(logPath),
		OnBatch: func(batch []Reading) {
			batches <- batch
		},
		Clock:  mockClock,
		Logger: logger,
	})
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- monitor.Run(ctx)
	}()

	// the first batch is collected immediately
	batch := <-batches
	test.That(t, batch, test.ShouldHaveLength, 5)
	test.That(t, monitor.Len(), test.ShouldEqual, 5)

	raw.SetTemperature1(30)
	mockClock.Add(time.Second)
	<-batches
	test.That(t, monitor.Len(), test.ShouldEqual, 10)

	// a third batch pushes the window past 12, evicting the oldest batch
	mockClock.Add(time.Second)
	<-batches
	test.That(t, monitor.Len(), test.ShouldEqual, 10)

	readings := monitor.Readings()
	test.That(t, readings, test.ShouldHaveLength, 10)
	test.That(t, readings[0].ID, test.ShouldEqual, "TC1")
	test.That(t, readings[0].Value, test.ShouldAlmostEqual, 30)

	cancel()
	test.That(t, <-errCh, test.ShouldBeNil)
	test.That(t, raw.CloseCount(), test.ShouldEqual, 3)

	// the log kept every batch, not just the window
	logged, err := NewLog(logPath).ReadAll()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logged, test.ShouldHaveLength, 15)
}

func TestMonitorStopsOnError(t *testing.T) {
	logger := golog.NewTestLogger(t)
	prevOpen := serial.Open
	defer func() {
		serial.Open = prevOpen
	}()

	t.Run("open failure", func(t *testing.T) {
		serial.Open = func(devicePath string, options serial.Options) (io.ReadWriteCloser, error) {
			return nil, errors.New("whoops")
		}
		dev := NewDevice("somepath", DefaultSerialOptions(), logger)

		monitor, err := NewMonitor(dev, MonitorConfig{
			Interval: time.Second,
			Logger:   logger,
		})
		test.That(t, err, test.ShouldBeNil)

		err = monitor.Run(context.Background())
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "collecting readings")
		test.That(t, err.Error(), test.ShouldContainSubstring, "whoops")
		test.That(t, monitor.Len(), test.ShouldEqual, 0)
	})

	t.Run("device failure mid run", func(t *testing.T) {
		raw := NewRawKTH()
		raw.SetFailAfter(10)
		serial.Open = func(devicePath string, options serial.Options) (io.ReadWriteCloser, error) {
			return raw, nil
		}
		dev := NewDevice("somepath", DefaultSerialOptions(), logger)

		mockClock := clk.NewMock()
		batches := make(chan []Reading)
		monitor, err := NewMonitor(dev, MonitorConfig{
			Interval: time.Second,
			OnBatch: func(batch []Reading) {
				batches <- batch
			},
			Clock:  mockClock,
			Logger: logger,
		})
		test.That(t, err, test.ShouldBeNil)

		errCh := make(chan error)
		go func() {
			errCh <- monitor.Run(context.Background())
		}()

		// the first cycle's ten operations all succeed
		batch := <-batches
		test.That(t, batch, test.ShouldHaveLength, 5)

		mockClock.Add(time.Second)
		err = <-errCh
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "requesting TC1")
		test.That(t, err.Error(), test.ShouldContainSubstring, "write failed")

		// the first batch stays in the window and the port was closed each cycle
		test.That(t, monitor.Len(), test.ShouldEqual, 5)
		test.That(t, raw.CloseCount(), test.ShouldEqual, 2)
	})
}
