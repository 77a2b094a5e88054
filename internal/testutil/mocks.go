// Package testutil holds hand-written mocks shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/Brownie44l1/deepcatcher-api/internal/classifier"
	"github.com/Brownie44l1/deepcatcher-api/internal/imageproc"
	"github.com/Brownie44l1/deepcatcher-api/internal/userservice"
)

// MockClassifier is a mock implementation of pipeline.Classifier.
type MockClassifier struct {
	ClassifyFunc func(t *imageproc.Tensor) (classifier.Result, error)

	mu        sync.Mutex
	CallCount int
}

func (m *MockClassifier) Classify(t *imageproc.Tensor) (classifier.Result, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(t)
	}
	// Default: a confident "Fake"
	return classifier.Result{Label: classifier.LabelFake, Confidence: 90}, nil
}

// MockPredictionService is a mock implementation of pipeline.PredictionService.
type MockPredictionService struct {
	FetchUserIDFunc      func(ctx context.Context, token string) (userservice.UserID, error)
	SavePredictionFunc   func(ctx context.Context, req userservice.SaveRequest, token string) (*userservice.Ack, error)
	FetchHistoryFunc     func(ctx context.Context, token string, user *userservice.UserID) ([]userservice.PredictionRecord, error)
	FetchUserReportsFunc func(ctx context.Context, user userservice.UserID, token string) ([]userservice.Report, error)

	mu          sync.Mutex
	Calls       []string
	LastToken   string
	LastSave    *userservice.SaveRequest
	LastHistory *userservice.UserID
}

func (m *MockPredictionService) record(op, token string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, op)
	m.LastToken = token
	m.mu.Unlock()
}

// CallCount is the total number of calls across all operations.
func (m *MockPredictionService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockPredictionService) FetchUserID(ctx context.Context, token string) (userservice.UserID, error) {
	m.record(userservice.OpGetUserID, token)
	if m.FetchUserIDFunc != nil {
		return m.FetchUserIDFunc(ctx, token)
	}
	return 7, nil
}

func (m *MockPredictionService) SavePrediction(ctx context.Context, req userservice.SaveRequest, token string) (*userservice.Ack, error) {
	m.record(userservice.OpSavePrediction, token)
	m.mu.Lock()
	m.LastSave = &req
	m.mu.Unlock()

	if m.SavePredictionFunc != nil {
		return m.SavePredictionFunc(ctx, req, token)
	}
	return &userservice.Ack{StatusCode: 201}, nil
}

func (m *MockPredictionService) FetchHistory(ctx context.Context, token string, user *userservice.UserID) ([]userservice.PredictionRecord, error) {
	m.record(userservice.OpGetHistory, token)
	m.mu.Lock()
	m.LastHistory = user
	m.mu.Unlock()

	if m.FetchHistoryFunc != nil {
		return m.FetchHistoryFunc(ctx, token, user)
	}
	return []userservice.PredictionRecord{}, nil
}

func (m *MockPredictionService) FetchUserReports(ctx context.Context, user userservice.UserID, token string) ([]userservice.Report, error) {
	m.record(userservice.OpGetReports, token)
	if m.FetchUserReportsFunc != nil {
		return m.FetchUserReportsFunc(ctx, user, token)
	}
	return []userservice.Report{}, nil
}

// PNG returns a small encoded test image.
func PNG(w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// Record builds a valid PredictionRecord with the given id.
func Record(id int64, class string) userservice.PredictionRecord {
	user := userservice.UserID(7)
	conf := userservice.Confidence(88.5)
	return userservice.PredictionRecord{
		ID:             &id,
		User:           &user,
		Image:          "http://127.0.0.1:8000/media/predictions/image.png",
		PredictedClass: class,
		Confidence:     &conf,
	}
}
