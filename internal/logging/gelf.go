package logging

import (
	"fmt"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGELFHandler returns a JSON slog handler shipping records to Graylog over
// UDP. Each record becomes one GELF message whose full_message is the JSON line.
func NewGELFHandler(address, level string) (slog.Handler, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("create gelf writer: %w", err)
	}
	return slog.NewJSONHandler(w, HandlerOptions(level)), nil
}
