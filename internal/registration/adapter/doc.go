// Package adapter contains implementations of the collaborator interfaces
// defined in app: directory authenticators, code transports, and
// registration stores.
package adapter

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("registration/adapter")
