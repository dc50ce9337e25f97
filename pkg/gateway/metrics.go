// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	gatewayMetricsOnce sync.Once
	invocationCounter  metric.Int64Counter
)

// initGatewayMetrics lazily creates instruments so the gateway works with or
// without a configured meter provider.
func initGatewayMetrics() {
	gatewayMetricsOnce.Do(func() {
		meter := otel.Meter("praxis/gateway")
		var err error
		invocationCounter, err = meter.Int64Counter("praxis.capability.invocations",
			metric.WithDescription("Capability invocations by outcome"))
		if err != nil {
			slog.Warn("gateway.metrics.init.failed", "error", err)
		}
	})
}
