package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DeliveryEnvelope is the unit carried on the durable stream.
type DeliveryEnvelope struct {
	Recipient string `json:"recipient" validate:"required,email"`
	Token     string `json:"token" validate:"required"`
	MessageID string `json:"message_id" validate:"required"`
}

func (e DeliveryEnvelope) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return nil
}

// DecodeEnvelope parses and validates raw stream data.
func DecodeEnvelope(data []byte) (DeliveryEnvelope, error) {
	var env DeliveryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, env.Validate()
}

// FailureType classifies why a message was dead-lettered.
type FailureType string

const (
	FailureExhausted FailureType = "exhausted"
	FailureMalformed FailureType = "malformed"
)

// DeadLetter is the entry written to the dead-letter stream.
type DeadLetter struct {
	OriginalMessage json.RawMessage `json:"original_message"`
	Error           string          `json:"error"`
	Timestamp       time.Time       `json:"timestamp"`
	MessageID       string          `json:"message_id"`
	Attempts        int             `json:"attempts"`
	FailureType     FailureType     `json:"failure_type"`
}

// NewDeadLetter wraps the original message bytes. Bytes that are not valid
// JSON are kept as a JSON string so the entry stays decodable.
func NewDeadLetter(original []byte, messageID string, attempts int, failure FailureType, cause error, at time.Time) DeadLetter {
	raw := json.RawMessage(original)
	if !json.Valid(original) {
		quoted, _ := json.Marshal(string(original))
		raw = quoted
	}
	reason := "unknown error"
	if cause != nil && cause.Error() != "" {
		reason = cause.Error()
	}
	return DeadLetter{
		OriginalMessage: raw,
		Error:           reason,
		Timestamp:       at.UTC(),
		MessageID:       messageID,
		Attempts:        attempts,
		FailureType:     failure,
	}
}

// Envelope decodes the original message as a delivery envelope.
func (d DeadLetter) Envelope() (DeliveryEnvelope, error) {
	return DecodeEnvelope(d.OriginalMessage)
}
