package userservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// UserID identifies an account on the user-service.
type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// PredictionRecord is a stored prediction as returned by the user-service.
// Pointer fields distinguish a missing key from a zero value.
type PredictionRecord struct {
	ID             *int64      `json:"id" validate:"required"`
	User           *UserID     `json:"user" validate:"required"`
	Image          string      `json:"image" validate:"required"`
	PredictedClass string      `json:"predicted_class" validate:"required"`
	Confidence     *Confidence `json:"confidence" validate:"required"`
	Timestamp      *time.Time  `json:"timestamp" validate:"required"`
}

// Report is a user-submitted report about a prediction.
type Report struct {
	ID         *int64     `json:"id" validate:"required"`
	User       *UserID    `json:"user,omitempty"`
	Prediction *int64     `json:"prediction,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Status     string     `json:"status,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// Confidence is a percentage. The user-service stores it as a decimal, which
// may arrive as either a JSON number or a numeric string.
type Confidence float64

func (c *Confidence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("confidence %s is not a number", data)
	}
	*c = Confidence(f)
	return nil
}

// SaveRequest carries one classified image to be persisted.
type SaveRequest struct {
	User           UserID
	PredictedClass string
	Confidence     float64
	Filename       string
	Image          []byte
}

// Ack acknowledges a stored prediction. Record is set when the service echoes
// the created row back.
type Ack struct {
	StatusCode int
	Record     *PredictionRecord
}

type userIDResponse struct {
	UserID *UserID `json:"user_id" validate:"required"`
}
