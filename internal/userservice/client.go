// Package userservice is a client for the external user-service, which owns
// user identities and stored predictions.
package userservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Brownie44l1/deepcatcher-api/internal/metrics"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultBaseURL    = "http://127.0.0.1:8000/user-service/"
	DefaultAuthScheme = "Token"
	DefaultTimeout    = 10 * time.Second

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 4 << 20
)

// Operation names, as reported in errors and metrics.
const (
	OpGetUserID      = "get user id"
	OpSavePrediction = "save prediction"
	OpGetHistory     = "get prediction history"
	OpGetReports     = "get user reports"
)

// Client calls the user-service. Every call is a single attempt.
type Client struct {
	url      *url.URL
	client   *http.Client
	scheme   string
	validate *validator.Validate
}

// NewClient parses baseURL and builds a client. A nil httpClient gets a
// default one with DefaultTimeout; an empty scheme uses DefaultAuthScheme.
func NewClient(baseURL, scheme string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %q: scheme must be http or https", baseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if scheme == "" {
		scheme = DefaultAuthScheme
	}

	return &Client{url: u, client: httpClient, scheme: scheme, validate: validator.New()}, nil
}

// FetchUserID resolves token to the id of the user it belongs to.
func (c *Client) FetchUserID(ctx context.Context, token string) (UserID, error) {
	status, body, err := c.do(ctx, OpGetUserID, http.MethodGet, "user/id/", nil, token, nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, &AuthError{StatusCode: status, Body: string(body)}
	}

	var resp userIDResponse
	if err := c.decode(body, &resp); err != nil {
		return 0, &MalformedResponseError{Op: OpGetUserID, Err: err}
	}
	return *resp.UserID, nil
}

// SavePrediction stores one prediction with its image as a multipart form.
func (c *Client) SavePrediction(ctx context.Context, req SaveRequest, token string) (*Ack, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := [][2]string{
		{"predicted_class", req.PredictedClass},
		{"confidence", strconv.FormatFloat(req.Confidence, 'f', -1, 64)},
		{"user", req.User.String()},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", f[0], err)
		}
	}

	filename := req.Filename
	if filename == "" {
		filename = "image"
	}
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("create form: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	header := http.Header{"Content-Type": {writer.FormDataContentType()}}
	status, respBody, err := c.do(ctx, OpSavePrediction, http.MethodPost, "predictions/", nil, token, body, header)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, &PersistError{StatusCode: status, Body: string(respBody)}
	}

	ack := &Ack{StatusCode: status}
	var rec PredictionRecord
	if json.Unmarshal(respBody, &rec) == nil && c.validate.Struct(&rec) == nil {
		ack.Record = &rec
	}
	return ack, nil
}

// FetchHistory lists stored predictions in the order the service returns
// them. A nil user lists whatever the token is allowed to see.
func (c *Client) FetchHistory(ctx context.Context, token string, user *UserID) ([]PredictionRecord, error) {
	var query url.Values
	if user != nil {
		query = url.Values{"user": {user.String()}}
	}

	var records []PredictionRecord
	if err := c.getList(ctx, OpGetHistory, "predictions/", query, token, &records); err != nil {
		return nil, err
	}
	for i := range records {
		if err := c.validate.Struct(&records[i]); err != nil {
			return nil, &MalformedResponseError{Op: OpGetHistory, Err: fmt.Errorf("record %d: %w", i, err)}
		}
	}
	return records, nil
}

// FetchUserReports lists the reports submitted by user.
func (c *Client) FetchUserReports(ctx context.Context, user UserID, token string) ([]Report, error) {
	query := url.Values{"user": {user.String()}}

	var reports []Report
	if err := c.getList(ctx, OpGetReports, "reports/user_reports/", query, token, &reports); err != nil {
		return nil, err
	}
	for i := range reports {
		if err := c.validate.Struct(&reports[i]); err != nil {
			return nil, &MalformedResponseError{Op: OpGetReports, Err: fmt.Errorf("report %d: %w", i, err)}
		}
	}
	return reports, nil
}

func (c *Client) getList(ctx context.Context, op, path string, query url.Values, token string, out any) error {
	status, body, err := c.do(ctx, op, http.MethodGet, path, query, token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &FetchError{Op: op, StatusCode: status, Body: string(body)}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return &MalformedResponseError{Op: op, Err: fmt.Errorf("expected a JSON array")}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &MalformedResponseError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return err
	}
	return c.validate.Struct(out)
}

// do sends one request and returns the status and (capped) body. Transport
// failures are returned as errors; HTTP error statuses are not.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, token string, body io.Reader, headers ...http.Header) (int, []byte, error) {
	u := c.url.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	request.Header.Set("Authorization", c.scheme+" "+token)
	request.Header.Set("Accept", "application/json")
	for _, h := range headers {
		for k, v := range h {
			request.Header[k] = v
		}
	}

	response, err := c.client.Do(request)
	if err != nil {
		metrics.UserServiceCall(op, 0)
		return 0, nil, fmt.Errorf("%s: send request: %w", op, err)
	}
	defer response.Body.Close()
	metrics.UserServiceCall(op, response.StatusCode)

	data, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return response.StatusCode, nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	return response.StatusCode, data, nil
}
