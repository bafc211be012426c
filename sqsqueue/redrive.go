package sqsqueue

import (
	"strconv"

	"github.com/goccy/go-json"
)

// Redrive is the decoded RedrivePolicy queue attribute
type Redrive struct {
	// DeadLetterTargetArn is the ARN of the dead-letter queue
	DeadLetterTargetArn string `json:"deadLetterTargetArn"`
	// MaxReceiveCount is the number of receives before a message is moved to the dead-letter queue
	MaxReceiveCount ReceiveCount `json:"maxReceiveCount"`
}

// ReceiveCount accepts both the number and the string form used by SQS
type ReceiveCount int

func (r *ReceiveCount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*r = ReceiveCount(n)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = ReceiveCount(n)
	return nil
}

func parseRedrive(data string) (*Redrive, error) {
	rp := &Redrive{}
	if err := json.Unmarshal([]byte(data), rp); err != nil {
		return nil, err
	}

	return rp, nil
}
