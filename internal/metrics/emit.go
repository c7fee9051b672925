package metrics

import (
	"sync/atomic"

	"orderly/logger"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

// Configure turns structured metric emission on or off.
func Configure(on bool) {
	enabled.Store(on)
}

// Enabled reports whether EmitMetric is active.
func Enabled() bool {
	return enabled.Load()
}

// EmitMetric logs a metric line for component and forwards numeric values to
// CloudWatch when it is configured. An empty name is ignored.
func EmitMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) {
	if !enabled.Load() || name == "" {
		return
	}
	if log == nil {
		log = logger.GetLogger()
	}

	copied := make(logger.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	log.WithComponent(component).LogMetric(component, name, value, metricType, copied)
}
