// Package sqs provides the Endure plugin serving the named AWS SQS queues.
//
// The plugin registers itself under the "sqs" name. It reads the AWS access
// settings and the queues from the "sqs" configuration section, then creates
// or resolves every queue when served. Handles are looked up with
// [Plugin.Queue].
//
// A TracerProvider collected from the otel plugin parents the spans of the
// queue operations; the consumption counters are exposed to the metrics
// plugin through MetricsCollector.
package sqs
