// Package tracer provides OpenTelemetry tracing for the vector collection engine.
//
// Collection operations open one span each; failures are recorded on the span.
// The carrier helpers move trace context through cache invalidation messages
// so a reload in another process joins the trace of the change that caused it.
//
// A nil *Tracer is valid and produces non-recording spans.
package tracer
