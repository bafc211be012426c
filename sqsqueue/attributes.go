package sqsqueue

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// Queue attribute names, as they appear in the configuration and in SQS
const (
	FifoQueue                        string = "fifo_queue"
	FifoQueueAWS                     string = "FifoQueue"
	DelaySeconds                     string = "delay_seconds"
	DelaySecondsAWS                  string = "DelaySeconds"
	MaximumMessageSize               string = "maximum_message_size"
	MaximumMessageSizeAWS            string = "MaximumMessageSize"
	MessageRetentionPeriod           string = "message_retention_period"
	MessageRetentionPeriodAWS        string = "MessageRetentionPeriod"
	ReceiveMessageWaitTimeSeconds    string = "receive_message_wait_time_seconds"
	ReceiveMessageWaitTimeSecondsAWS string = "ReceiveMessageWaitTimeSeconds"
	RedrivePolicy                    string = "redrive_policy"
	RedrivePolicyAWS                 string = "RedrivePolicy"
	VisibilityTimeout                string = "visibility_timeout"
	VisibilityTimeoutAWS             string = "VisibilityTimeout"
	ContentBasedDeduplication        string = "content_based_deduplication"
	ContentBasedDeduplicationAWS     string = "ContentBasedDeduplication"
	DeduplicationScope               string = "deduplication_scope"
	DeduplicationScopeAWS            string = "DeduplicationScope"
	FifoThroughputLimit              string = "fifo_throughput_limit"
	FifoThroughputLimitAWS           string = "FifoThroughputLimit"
)

// Attr.Value
const (
	DeduplicationScopeMessageGroup string = "messageGroup"
	DeduplicationScopeQueue        string = "queue"

	FifoThroughputLimitPerMessageGroupID string = "perMessageGroupId"
	FifoThroughputLimitPerQueue          string = "perQueue"
)

const fifoSuffix string = ".fifo"

// ToCamelCase converts a snake_case identifier to the SQS attribute naming:
// every character following an underscore is upper-cased and the underscores
// are dropped, the first character included (fifo_queue -> FifoQueue).
func ToCamelCase(identifier string) string {
	var sb strings.Builder
	sb.Grow(len(identifier))

	upper := true
	for _, r := range identifier {
		switch {
		case upper:
			sb.WriteRune(unicode.ToUpper(r))
			upper = false
		case r == '_':
			upper = true
		default:
			sb.WriteRune(r)
		}
	}

	// a dangling underscore has nothing to upper-case and is kept
	if upper && strings.HasSuffix(identifier, "_") {
		sb.WriteByte('_')
	}

	return sb.String()
}

// toAwsAttributes maps snake_case attributes to their SQS names and string
// values. nil values (nil pointers included) are skipped.
func toAwsAttributes(attrs map[string]any) map[string]string {
	ret := make(map[string]string, len(attrs))

	for k, v := range attrs {
		str, ok := attrToString(v)
		if !ok {
			continue
		}

		ret[ToCamelCase(k)] = str
	}

	return ret
}

func attrToString(v any) (string, bool) {
	if v == nil {
		return "", false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}

	// fmt renders booleans as the lowercase "true" / "false" literals
	return fmt.Sprint(rv.Interface()), true
}

func isFifo(queueName string) bool {
	return strings.HasSuffix(queueName, fifoSuffix)
}

// nameFromURL returns the last path element of the queue URL
func nameFromURL(url string) string {
	return url[strings.LastIndexByte(url, '/')+1:]
}
