// Package main contains a command to monitor an Elmor Labs KTH-USB thermometer.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"github.com/bjorntas/kthmon/chart"
	"github.com/bjorntas/kthmon/kth"
	"github.com/bjorntas/kthmon/serial"
	"github.com/bjorntas/kthmon/web"
)

func main() {
	utils.ContextualMainQuit(mainWithArgs, logger)
}

var (
	defaultPort       = 8080
	defaultIntervalMs = 1000

	logger = golog.NewDevelopmentLogger("kthmon")
)

// Arguments for the command.
type Arguments struct {
	Port        utils.NetPortFlag `flag:"port,usage=port to serve the web UI on"`
	Device      string            `flag:"device,usage=serial device path of the thermometer"`
	List        bool              `flag:"list,usage=list detected serial devices and exit"`
	Baud        int               `flag:"baud,default=9600,usage=serial baud rate"`
	Interval    int               `flag:"interval-ms,usage=time between polls (ms)"`
	ReadTimeout int               `flag:"read-timeout-ms,default=1000,usage=serial read timeout (ms); 0 blocks"`
	MaxLength   int               `flag:"max-length,default=500,usage=max readings to keep in memory"`
	CSVPath     string            `flag:"csv,default=temperature_measurements.csv,usage=CSV log path; empty disables logging"`
	Snapshot    string            `flag:"snapshot,usage=write a chart PNG here after every poll"`
	Pprof       bool              `flag:"pprof,usage=include profiler in http server"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Port == 0 {
		argsParsed.Port = utils.NetPortFlag(defaultPort)
	}
	if argsParsed.Interval <= 0 {
		argsParsed.Interval = defaultIntervalMs
	}

	if argsParsed.List {
		devices := serial.Search(serial.SearchFilter{})
		if len(devices) == 0 {
			logger.Info("no serial devices found")
			return nil
		}
		for _, desc := range devices {
			logger.Infof("%s (%s)", desc.Path, desc.Type)
		}
		return nil
	}

	devicePath := argsParsed.Device
	if devicePath == "" {
		devices := serial.Search(serial.SearchFilter{Type: serial.TypeKTH})
		if len(devices) == 0 {
			return errors.New("no suitable device found")
		}
		logger.Debugf("detected %d KTH devices", len(devices))
		devicePath = devices[0].Path
	}

	return monitorDevice(ctx, devicePath, argsParsed, logger)
}

func monitorDevice(ctx context.Context, devicePath string, args Arguments, logger golog.Logger) error {
	opts := kth.DefaultSerialOptions()
	if args.Baud > 0 {
		opts.BaudRate = args.Baud
	}
	opts.ReadTimeout = args.ReadTimeout

	device := kth.NewDevice(devicePath, opts, logger)
	identity, err := device.Identify(ctx)
	if err != nil {
		return err
	}
	logger.Infow("device identified",
		"path", devicePath,
		"welcome", identity.Welcome,
		"unique_id", fmt.Sprintf("%X", identity.UniqueID),
		"firmware", fmt.Sprintf("%X", identity.Firmware),
	)

	var log *kth.Log
	if args.CSVPath != "" {
		log = kth.NewLog(args.CSVPath)
	}

	var snapshot *chart.Source
	onBatch := func(batch []kth.Reading) {
		logger.Infow("readings", "data", batch)
		if snapshot == nil {
			return
		}
		if err := writeSnapshot(ctx, snapshot, args.Snapshot); err != nil {
			logger.Errorw("failed to write chart snapshot", "error", err)
		}
	}

	monitor, err := kth.NewMonitor(&pollSignaler{collector: device}, kth.MonitorConfig{
		Interval:   time.Duration(args.Interval) * time.Millisecond,
		WindowSize: args.MaxLength,
		Log:        log,
		OnBatch:    onBatch,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if args.Snapshot != "" {
		snapshot = chart.NewSource(monitor)
	}

	info := web.DeviceInfo{
		DevicePath: devicePath,
		Welcome:    identity.Welcome,
		UniqueID:   fmt.Sprintf("%X", identity.UniqueID),
		Firmware:   fmt.Sprintf("%X", identity.Firmware),
		LogPath:    args.CSVPath,
	}

	quitSignaler := utils.ContextMainQuitSignal(ctx)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return monitor.Run(groupCtx)
	})
	group.Go(func() error {
		options := web.Options{Port: int(args.Port), Pprof: args.Pprof}
		return web.RunServer(groupCtx, monitor, info, options, logger)
	})
	group.Go(func() error {
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-quitSignaler:
				logger.Infow("buffered readings", "count", monitor.Len())
			}
		}
	})
	return group.Wait()
}

// pollSignaler wraps a collector so that command lifecycle callbacks fire
// around every poll, successful or not.
type pollSignaler struct {
	collector kth.Collector
	readyOnce sync.Once
}

func (s *pollSignaler) Collect(ctx context.Context) ([]kth.Reading, error) {
	defer utils.ContextMainIterFunc(ctx)()
	defer s.readyOnce.Do(utils.ContextMainReadyFunc(ctx))
	return s.collector.Collect(ctx)
}

func writeSnapshot(ctx context.Context, source *chart.Source, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return source.WritePNG(ctx, f)
}
