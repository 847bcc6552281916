// Package web provides a browser UI and HTTP API to monitor a KTH thermometer.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/bjorntas/kthmon/chart"
	"github.com/bjorntas/kthmon/kth"
)

// Options configure RunServer.
type Options struct {
	// Port to serve on.
	Port int
	// Pprof turns on the profiling endpoints.
	Pprof bool
}

// DeviceInfo describes the monitored device for display.
type DeviceInfo struct {
	DevicePath string
	Welcome    string
	UniqueID   string
	Firmware   string
	// LogPath, when set, exposes the CSV log for download.
	LogPath string
}

// A Monitor is the part of the poller the web server reads from.
type Monitor interface {
	Readings() []kth.Reading
	Len() int
}

const indexTemplateText = `<!doctype html>
<html>
<head>
<title>{{.Info.Welcome}}</title>
<meta http-equiv="refresh" content="1">
<style>
body { font-family: monospace; background-color: #707576; color: #ffffff; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ffffff; padding: 2px 8px; text-align: right; }
</style>
</head>
<body>
<h1>{{.Info.Welcome}}</h1>
<p>{{.Info.DevicePath}} &mdash; unique id {{.Info.UniqueID}}, firmware {{.Info.Firmware}}</p>
<img src="/chart.png" width="768" height="672" alt="temperature chart">
<h2>Latest readings</h2>
<table>
<tr><th>id</th><th>unit</th><th>value</th><th>time</th></tr>
{{range .Latest}}<tr><td>{{.ID}}</td><td>{{.Unit}}</td><td>{{printf "%.1f" .Value}}</td><td>{{.Time.Format "15:04:05"}}</td></tr>
{{end}}</table>
<h2>Temperature summary</h2>
<table>
<tr><th>id</th><th>samples</th><th>latest</th><th>mean</th><th>min</th><th>max</th></tr>
{{range .Summaries}}<tr><td>{{.Name}}</td><td>{{.Count}}</td><td>{{printf "%.1f" .Latest}}</td><td>{{printf "%.1f" .Mean}}</td><td>{{printf "%.1f" .Min}}</td><td>{{printf "%.1f" .Max}}</td></tr>
{{end}}</table>
<p>{{.WindowLen}} readings buffered &mdash; <a href="/readings.json">readings.json</a>{{if .Info.LogPath}}, <a href="/log.csv">log.csv</a>{{end}}</p>
</body>
</html>
`

// monitorWebApp hosts the index page for a monitored device.
type monitorWebApp struct {
	template *template.Template
	monitor  Monitor
	info     DeviceInfo
	logger   golog.Logger
}

// Init does template initialization work.
func (app *monitorWebApp) Init() error {
	t, err := template.New("index").Parse(indexTemplateText)
	if err != nil {
		return err
	}
	app.template = t
	return nil
}

// temperatureSummary aggregates one thermocouple's buffered readings.
type temperatureSummary struct {
	Name   string
	Count  int
	Latest float64
	Mean   float64
	Min    float64
	Max    float64
}

// temperatureSummaries computes per-thermocouple aggregates, in register
// table order.
func temperatureSummaries(readings []kth.Reading) []temperatureSummary {
	var out []temperatureSummary
	for _, reg := range kth.Registers {
		if reg.Unit != kth.UnitTemperature {
			continue
		}
		var values []float64
		for _, r := range readings {
			if r.ID == reg.Name && r.Unit == kth.UnitTemperature {
				values = append(values, r.Value)
			}
		}
		if len(values) == 0 {
			continue
		}
		out = append(out, temperatureSummary{
			Name:   reg.Name,
			Count:  len(values),
			Latest: values[len(values)-1],
			Mean:   stat.Mean(values, nil),
			Min:    floats.Min(values),
			Max:    floats.Max(values),
		})
	}
	return out
}

// latestReadings picks the most recent reading of every register, in table
// order.
func latestReadings(readings []kth.Reading) []kth.Reading {
	var out []kth.Reading
	for _, reg := range kth.Registers {
		for i := len(readings) - 1; i >= 0; i-- {
			if readings[i].ID == reg.Name {
				out = append(out, readings[i])
				break
			}
		}
	}
	return out
}

// ServeHTTP serves the UI.
func (app *monitorWebApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	readings := app.monitor.Readings()
	data := struct {
		Info      DeviceInfo
		Latest    []kth.Reading
		Summaries []temperatureSummary
		WindowLen int
	}{
		Info:      app.info,
		Latest:    latestReadings(readings),
		Summaries: temperatureSummaries(readings),
		WindowLen: len(readings),
	}

	if err := app.template.Execute(w, data); err != nil {
		app.logger.Debugf("couldn't execute web page: %s", err)
	}
}

// chartHandler serves the current chart as a PNG.
type chartHandler struct {
	source *chart.Source
	logger golog.Logger
}

func (h *chartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.source.WritePNG(r.Context(), &buf); err != nil {
		h.logger.Debugf("couldn't render chart: %s", err)
		http.Error(w, fmt.Sprintf("error rendering chart: %s", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Debugf("couldn't write chart: %s", err)
	}
}

// readingsHandler serves the buffered readings as JSON.
type readingsHandler struct {
	monitor Monitor
	logger  golog.Logger
}

func (h *readingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.monitor.Readings()); err != nil {
		h.logger.Debugf("couldn't write readings: %s", err)
	}
}

// logHandler serves the CSV log file.
type logHandler struct {
	path string
}

func (h *logHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, h.path)
}

// RunServer runs the web server for the given monitor. This function will
// block until the context is done.
func RunServer(ctx context.Context, monitor Monitor, info DeviceInfo, options Options, logger golog.Logger) (err error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", options.Port))
	if err != nil {
		return err
	}

	app := &monitorWebApp{monitor: monitor, info: info, logger: logger}
	if err := app.Init(); err != nil {
		return multierr.Combine(err, listener.Close())
	}

	mux := goji.NewMux()
	mux.Handle(pat.Get("/chart.png"), &chartHandler{source: chart.NewSource(monitor), logger: logger})
	mux.Handle(pat.Get("/readings.json"), &readingsHandler{monitor: monitor, logger: logger})
	if info.LogPath != "" {
		mux.Handle(pat.Get("/log.csv"), &logHandler{path: info.LogPath})
	}

	if options.Pprof {
		mux.HandleFunc(pat.New("/debug/pprof/"), pprof.Index)
		mux.HandleFunc(pat.New("/debug/pprof/cmdline"), pprof.Cmdline)
		mux.HandleFunc(pat.New("/debug/pprof/profile"), pprof.Profile)
		mux.HandleFunc(pat.New("/debug/pprof/symbol"), pprof.Symbol)
		mux.HandleFunc(pat.New("/debug/pprof/trace"), pprof.Trace)
	}

	mux.Handle(pat.New("/"), app)

	httpServer := &http.Server{
		Addr:           listener.Addr().String(),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Handler:        mux,
	}

	utils.PanicCapturingGo(func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			logger.Errorw("error shutting down", "error", err)
		}
	})

	logger.Debugw("serving", "url", fmt.Sprintf("http://%s", listener.Addr().String()))
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
