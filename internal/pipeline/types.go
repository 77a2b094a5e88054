package pipeline

import (
	"context"
	"fmt"

	"github.com/Brownie44l1/deepcatcher-api/internal/classifier"
	"github.com/Brownie44l1/deepcatcher-api/internal/imageproc"
	"github.com/Brownie44l1/deepcatcher-api/internal/userservice"
)

// State is how far an uploaded image has progressed.
type State int

const (
	Uploaded State = iota
	Normalized
	Classified
	Persisted
)

func (s State) String() string {
	switch s {
	case Uploaded:
		return "uploaded"
	case Normalized:
		return "normalized"
	case Classified:
		return "classified"
	case Persisted:
		return "persisted"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "uploaded":
		*s = Uploaded
	case "normalized":
		*s = Normalized
	case "classified":
		*s = Classified
	case "persisted":
		*s = Persisted
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// Upload is one image as received from the user. It lives for one request.
type Upload struct {
	Filename string
	Format   string // jpeg or png, as declared by the uploader
	Data     []byte
}

// Item tracks one upload through the pipeline. Err is set, and Result is
// nil, when the item stopped before Classified.
type Item struct {
	Index  int
	Upload Upload
	State  State
	Result *classifier.Result
	Err    error
}

// Session is the caller's login state. It is supplied by the caller on every
// call and never modified here.
type Session struct {
	Token         string
	Authenticated bool
}

// Outcome of a login-gated action. Refused is not an error: the action was
// skipped because the session is not authenticated.
type Outcome struct {
	Refused bool
	Warning string
}

type SaveOutcome struct {
	Outcome
	Ack *userservice.Ack
}

type HistoryOutcome struct {
	Outcome
	Records []userservice.PredictionRecord
}

type ReportsOutcome struct {
	Outcome
	User    userservice.UserID
	Reports []userservice.Report
}

const (
	WarnSaveLogin    = "Please login to save the prediction."
	WarnHistoryLogin = "Please login to view prediction history."
	WarnReportsLogin = "Please login to view your reports."
)

// Classifier turns a tensor into a labelled result.
type Classifier interface {
	Classify(t *imageproc.Tensor) (classifier.Result, error)
}

// PredictionService is the remote store for predictions.
type PredictionService interface {
	FetchUserID(ctx context.Context, token string) (userservice.UserID, error)
	SavePrediction(ctx context.Context, req userservice.SaveRequest, token string) (*userservice.Ack, error)
	FetchHistory(ctx context.Context, token string, user *userservice.UserID) ([]userservice.PredictionRecord, error)
	FetchUserReports(ctx context.Context, user userservice.UserID, token string) ([]userservice.Report, error)
}
