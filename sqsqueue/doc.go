// Package sqsqueue implements named AWS SQS queues and their consumption.
//
// [Service] creates or resolves queues. Queue attributes are configured with
// their snake_case names and converted to the SQS names on creation.
//
// [Queue] is a named queue handle. The SQS queue operations (send, receive,
// purge, permissions...) listed by [Operations] are forwarded to the resolved
// [RemoteQueue]. StartConsuming long-polls the queue and hands every
// [Message] to a fixed size pool of workers. Messages are never acknowledged
// automatically: a handler deletes the message once it is handled, any other
// message is delivered again after its visibility timeout.
//
// [Registry] holds the queues configured under the `sqs.queues` section,
// created once at startup.
//
// Consumption emits OpenTelemetry spans, parented by the trace context found
// in the message attributes (W3C TraceContext, Baggage and Jaeger
// propagators), and Prometheus counters.
package sqsqueue
