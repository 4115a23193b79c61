package main

import (
	"errors"
	"testing"

	"prod-assistant/internal/service"

	"github.com/stretchr/testify/assert"
)

func TestFormatResult(t *testing.T) {
	ok := service.EvaluationResult{Metric: service.MetricContextPrecision, Score: 0.5}
	assert.Contains(t, formatResult(ok), "0.5000")

	failed := service.EvaluationResult{Metric: service.MetricResponseRelevancy, Err: errors.New("timeout")}
	assert.Contains(t, formatResult(failed), "error: timeout")
}
