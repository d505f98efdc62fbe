package workload

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// InvocationRecord is one row of a trace-mode invocation pattern: at
// timestamp milliseconds, num_invocations new flows of dag_name arrive
// together.
type InvocationRecord struct {
	Timestamp      int64
	DagName        string
	NumInvocations int
}

// InvocationReader supplies a trace-mode invocation pattern, sorted by
// timestamp, standing in for the reference implementation's
// pandas.read_csv(...).sort_values(by="timestamp").
type InvocationReader interface {
	ReadInvocations() ([]InvocationRecord, error)
}

// CSVInvocationReader reads (timestamp, dag_name, num_invocations) rows
// from a CSV file with a header row, the on-disk format produced by the
// external (out of scope) invocation-pattern generator.
type CSVInvocationReader struct {
	Path string
}

// NewCSVInvocationReader creates a CSVInvocationReader for path.
func NewCSVInvocationReader(path string) *CSVInvocationReader {
	return &CSVInvocationReader{Path: path}
}

// ReadInvocations implements InvocationReader.
func (r *CSVInvocationReader) ReadInvocations() ([]InvocationRecord, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("open invocation trace %s: %w", r.Path, err)
	}
	defer f.Close()
	return readInvocationCSV(f)
}

func readInvocationCSV(rd io.Reader) ([]InvocationRecord, error) {
	cr := csv.NewReader(rd)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"timestamp", "dag_name", "num_invocations"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("invocation trace missing required column %q", required)
		}
	}

	var records []InvocationRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ts, err := strconv.ParseInt(row[col["timestamp"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", row[col["timestamp"]], err)
		}
		num, err := strconv.Atoi(row[col["num_invocations"]])
		if err != nil {
			return nil, fmt.Errorf("parse num_invocations %q: %w", row[col["num_invocations"]], err)
		}
		records = append(records, InvocationRecord{
			Timestamp:      ts,
			DagName:        row[col["dag_name"]],
			NumInvocations: num,
		})
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })
	return records, nil
}
