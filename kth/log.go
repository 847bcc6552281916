package kth

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// csvHeader names the log's columns, in writing order.
var csvHeader = []string{"timestamp", "id", "unit", "value"}

// A Log appends readings to a CSV file. The file is only ever appended to;
// the header row is written once, when the file is empty, and restarts keep
// extending the same file.
type Log struct {
	path string
}

// NewLog returns a log that appends to the given path. The file is created
// on first append.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Path returns the file the log appends to.
func (l *Log) Path() string {
	return l.path
}

// Append writes a batch of readings to the end of the file, preceded by the
// header row if the file is empty. An empty batch writes nothing.
func (l *Log) Append(batch []Reading) (err error) {
	if len(batch) == 0 {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening log %s", l.path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, r := range batch {
		record := []string{
			r.Time.Format(time.RFC3339Nano),
			r.ID,
			r.Unit,
			strconv.FormatFloat(r.Value, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadAll parses the log file back into readings, skipping the header row.
func (l *Log) ReadAll() (_ []Reading, err error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log %s", l.path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing log %s", l.path)
	}
	var readings []Reading
	for i, record := range records {
		if i == 0 && record[0] == csvHeader[0] {
			continue
		}
		if len(record) != len(csvHeader) {
			return nil, errors.Errorf("log %s line %d has %d fields, expected %d", l.path, i+1, len(record), len(csvHeader))
		}
		ts, err := time.Parse(time.RFC3339Nano, record[0])
		if err != nil {
			return nil, errors.Wrapf(err, "log %s line %d", l.path, i+1)
		}
		value, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "log %s line %d", l.path, i+1)
		}
		readings = append(readings, Reading{Time: ts, ID: record[1], Unit: record[2], Value: value})
	}
	return readings, nil
}
