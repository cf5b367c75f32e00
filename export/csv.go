package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/use-agent/gleaner/models"
)

// CSVSink collects records and writes them as CSV on Close, when the
// full column set is known. The header is the union of all record keys,
// well-known columns first.
type CSVSink struct {
	w    io.Writer
	c    io.Closer
	recs []models.Record
}

// NewCSVSink writes CSV to w. When w is also an io.Closer it is closed
// with the sink.
func NewCSVSink(w io.Writer) *CSVSink {
	s := &CSVSink{w: w}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

func (s *CSVSink) Write(rec models.Record) error {
	s.recs = append(s.recs, rec)
	return nil
}

func (s *CSVSink) Close() error {
	cw := csv.NewWriter(s.w)
	header := s.header()
	if len(header) > 0 {
		if err := cw.Write(header); err != nil {
			return models.NewCrawlError(models.ErrCodeExportFailed, "write csv header", err)
		}
		for _, rec := range s.recs {
			row := make([]string, len(header))
			for i, key := range header {
				v, ok := rec[key]
				if !ok {
					continue
				}
				row[i] = cell(v)
			}
			if err := cw.Write(row); err != nil {
				return models.NewCrawlError(models.ErrCodeExportFailed, "write csv row", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return models.NewCrawlError(models.ErrCodeExportFailed, "flush csv", err)
	}
	if s.c != nil {
		if err := s.c.Close(); err != nil {
			return models.NewCrawlError(models.ErrCodeExportFailed, "close output", err)
		}
	}
	return nil
}

// header is the union of every record's keys, in Keys() order of first
// appearance.
func (s *CSVSink) header() []string {
	seen := make(map[string]bool)
	var header []string
	for _, rec := range s.recs {
		for _, key := range rec.Keys() {
			if !seen[key] {
				seen[key] = true
				header = append(header, key)
			}
		}
	}
	return header
}

// cell renders one value for CSV: scalars as text, everything else as
// compact JSON.
func cell(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
