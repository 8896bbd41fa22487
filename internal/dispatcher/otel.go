package dispatcher

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/gcsplan/planner/internal/dispatcher"

func globalMeter() metric.Meter {
	return otel.Meter(instrumentationName)
}
