// Package export writes assembled records to their destinations: JSON
// Lines or CSV files, and optionally a webhook endpoint.
package export

import (
	"github.com/use-agent/gleaner/models"
)

// Sink receives records as they are assembled. Close flushes whatever
// the sink buffered; a record is only durable once Close returns nil.
type Sink interface {
	Write(rec models.Record) error
	Close() error
}

// Multi fans records out to several sinks, failing on the first error.
type Multi []Sink

func (m Multi) Write(rec models.Record) error {
	for _, s := range m {
		if err := s.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
