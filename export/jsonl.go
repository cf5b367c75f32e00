package export

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/use-agent/gleaner/models"
)

// JSONLSink streams one JSON object per line. Records are written as
// they arrive; Close only flushes.
type JSONLSink struct {
	w   *bufio.Writer
	c   io.Closer
	enc *json.Encoder
}

// NewJSONLSink writes JSON Lines to w. When w is also an io.Closer it is
// closed with the sink.
func NewJSONLSink(w io.Writer) *JSONLSink {
	bw := bufio.NewWriter(w)
	s := &JSONLSink{w: bw, enc: json.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

func (s *JSONLSink) Write(rec models.Record) error {
	if err := s.enc.Encode(rec); err != nil {
		return models.NewCrawlError(models.ErrCodeExportFailed, "encode record", err)
	}
	return nil
}

func (s *JSONLSink) Close() error {
	if err := s.w.Flush(); err != nil {
		return models.NewCrawlError(models.ErrCodeExportFailed, "flush output", err)
	}
	if s.c != nil {
		if err := s.c.Close(); err != nil {
			return models.NewCrawlError(models.ErrCodeExportFailed, "close output", err)
		}
	}
	return nil
}
