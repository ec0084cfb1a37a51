package data

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Record is one CSV row keyed by its header column name.
type Record map[string]string

// StreamCSV reads the header row of r synchronously, then streams every
// following row as a Record on out from a goroutine. out is closed when the
// input is exhausted or ctx is cancelled. Rows with the wrong number of
// fields are skipped and logged. The returned channel yields exactly one
// value: nil on clean EOF, otherwise the error that stopped the stream.
func StreamCSV(ctx context.Context, r io.Reader, out chan<- Record, log *slog.Logger) (<-chan error, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		close(out)
		if errors.Is(err, io.EOF) {
			return nil, errors.New("data: csv has no header row")
		}
		return nil, fmt.Errorf("data: read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(out)
		line := 1
		for {
			rec, err := reader.Read()
			line++
			if errors.Is(err, io.EOF) {
				errc <- nil
				return
			}
			if err != nil {
				errc <- fmt.Errorf("data: read line %d: %w", line, err)
				return
			}
			if len(rec) != len(cols) {
				log.Debug("skipping csv record", "line", line, "fields", len(rec), "want", len(cols))
				continue
			}
			row := make(Record, len(cols))
			for i, c := range cols {
				row[c] = rec[i]
			}
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case out <- row:
			}
		}
	}()
	return errc, nil
}

// Sample represents a single weighted data point.
type Sample struct {
	X []float64
	Y float64
	W float64
}

// Batch represents a collection of data points.
type Batch struct {
	X [][]float64
	Y []float64
	W []float64
}

// Emit streams the rows of X selected by order as Samples. A nil w gives unit
// weights. The channel is closed after the last sample or on cancellation.
func Emit(ctx context.Context, X [][]float64, y, w []float64, order []int) <-chan Sample {
	out := make(chan Sample)
	go func() {
		defer close(out)
		for _, i := range order {
			s := Sample{X: X[i], Y: y[i], W: 1}
			if w != nil {
				s.W = w[i]
			}
			select {
			case <-ctx.Done():
				return
			case out <- s:
			}
		}
	}()
	return out
}

// Batcher groups Samples from in into Batches of batchSize and sends them on
// out, flushing the final partial batch. out is closed when in is drained or
// ctx is cancelled.
func Batcher(ctx context.Context, in <-chan Sample, batchSize int, out chan<- Batch) {
	if batchSize <= 0 {
		batchSize = 1
	}
	go func() {
		defer close(out)
		var b Batch
		flush := func() bool {
			select {
			case <-ctx.Done():
				return false
			case out <- b:
				b = Batch{}
				return true
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-in:
				if !ok {
					if len(b.Y) > 0 {
						flush()
					}
					return
				}
				b.X = append(b.X, s.X)
				b.Y = append(b.Y, s.Y)
				b.W = append(b.W, s.W)
				if len(b.Y) == batchSize && !flush() {
					return
				}
			}
		}
	}()
}
