package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGELFHandler returns a JSON handler that ships each record to Graylog
// as one GELF message. Close the returned closer on shutdown.
func NewGELFHandler(addr, facility, level string) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("gelf writer %s: %w", addr, err)
	}
	w.Facility = facility
	return slog.NewJSONHandler(w, handlerOptions(parseLevel(level))), w, nil
}
