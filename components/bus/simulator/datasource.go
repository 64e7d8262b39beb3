package simulator

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/imufreefall/components/imu"
)

// A DataSource produces the samples the simulated device latches into its data registers.
type DataSource interface {
	Next() imu.RawSample
}

// EncodeAcceleration converts g to the register encoding of the ±2 g range. Values outside the
// range wrap around, like the truncating conversion a replay tool would do.
func EncodeAcceleration(g float64) uint16 {
	return uint16(int64(g*imu.LSBPerG) & 0xFFFF)
}

// Rows replays a fixed list of samples forever.
type Rows struct {
	mu      sync.Mutex
	samples []imu.RawSample
	next    int
}

// NewRows returns a DataSource cycling through rows, each an (x, y, z) acceleration in g.
func NewRows(rows ...[3]float64) (*Rows, error) {
	if len(rows) == 0 {
		return nil, errors.New("data source has no samples")
	}
	samples := make([]imu.RawSample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, imu.RawSample{
			X: EncodeAcceleration(row[0]),
			Y: EncodeAcceleration(row[1]),
			Z: EncodeAcceleration(row[2]),
		})
	}
	return &Rows{samples: samples}, nil
}

// Next implements DataSource.
func (r *Rows) Next() imu.RawSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	sample := r.samples[r.next]
	r.next = (r.next + 1) % len(r.samples)
	return sample
}

// Len returns the number of samples in one cycle.
func (r *Rows) Len() int {
	return len(r.samples)
}

// ReadCSV parses a recording with a header row and at least three columns holding the x, y and z
// acceleration in g. Extra columns are ignored.
func ReadCSV(in io.Reader) (*Rows, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("data source is empty")
		}
		return nil, errors.Wrap(err, "reading header")
	}

	var rows [][3]float64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		if len(record) < 3 {
			return nil, errors.Errorf("line %d: expected 3 columns, got %d", line, len(record))
		}
		var row [3]float64
		for axis := range row {
			row[axis], err = strconv.ParseFloat(strings.TrimSpace(record[axis]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
		}
		rows = append(rows, row)
	}
	return NewRows(rows...)
}

// ReadCSVFile is ReadCSV on a file.
func ReadCSVFile(path string) (*Rows, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	rows, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %q", path)
	}
	return rows, nil
}
