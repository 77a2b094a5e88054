package userservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/user-service/", "", nil)
	require.NoError(t, err)
	return client
}

func record(id int64, class string) string {
	return fmt.Sprintf(`{"id":%d,"user":7,"image":"http://127.0.0.1:8000/media/predictions/%d.png","predicted_class":%q,"confidence":"87.50","timestamp":"2024-05-01T12:34:56.789012Z"}`, id, id, class)
}

func TestNewClient(t *testing.T) {
	client, err := NewClient("", "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, client.url.String())
	assert.Equal(t, DefaultAuthScheme, client.scheme)
	assert.Equal(t, DefaultTimeout, client.client.Timeout)

	_, err = NewClient("127.0.0.1:8000", "", nil)
	assert.Error(t, err)
}

func TestFetchUserID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/user-service/user/id/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id": 7}`))
	})

	id, err := client.FetchUserID(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, UserID(7), id)
}

func TestFetchUserID_BearerScheme(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"user_id": 3}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/user-service/", "Bearer", nil)
	require.NoError(t, err)

	id, err := client.FetchUserID(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, UserID(3), id)
}

func TestFetchUserID_AuthError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid token."}`))
	})

	_, err := client.FetchUserID(context.Background(), "bad")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestFetchUserID_Malformed(t *testing.T) {
	for _, body := range []string{`{}`, `{"user_id":"seven"}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			_, err := client.FetchUserID(context.Background(), "secret")

			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, OpGetUserID, malformed.Op)
		})
	}
}

func TestSavePrediction_Created(t *testing.T) {
	image := []byte("\x89PNG fake image bytes")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/user-service/predictions/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Fake", r.FormValue("predicted_class"))
		assert.Equal(t, "90", r.FormValue("confidence"))
		assert.Equal(t, "7", r.FormValue("user"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "face.png", header.Filename)
		got, _ := io.ReadAll(file)
		assert.Equal(t, image, got)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(record(11, "Fake")))
	})

	ack, err := client.SavePrediction(context.Background(), SaveRequest{
		User:           7,
		PredictedClass: "Fake",
		Confidence:     90.0,
		Filename:       "face.png",
		Image:          image,
	}, "secret")
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, ack.StatusCode)
	require.NotNil(t, ack.Record)
	assert.Equal(t, int64(11), *ack.Record.ID)
}

func TestSavePrediction_CreatedWithoutEcho(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	ack, err := client.SavePrediction(context.Background(), SaveRequest{User: 1, PredictedClass: "Real", Confidence: 51.2}, "secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, ack.StatusCode)
	assert.Nil(t, ack.Record)
}

func TestSavePrediction_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "forbidden", status: http.StatusForbidden},
		{name: "ok is not created", status: http.StatusOK},
		{name: "bad request", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			})

			ack, err := client.SavePrediction(context.Background(), SaveRequest{User: 7, PredictedClass: "Fake", Confidence: 90}, "secret")
			assert.Nil(t, ack)

			var persistErr *PersistError
			require.ErrorAs(t, err, &persistErr)
			assert.Equal(t, tt.status, persistErr.StatusCode)
			assert.Contains(t, persistErr.Body, "nope")
		})
	}
}

func TestFetchHistory_PreservesOrder(t *testing.T) {
	ids := []int64{42, 3, 17, 8, 25}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = record(id, "Real")
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user-service/predictions/", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte("[" + strings.Join(parts, ",") + "]"))
	})

	records, err := client.FetchHistory(context.Background(), "secret", nil)
	require.NoError(t, err)

	require.Len(t, records, len(ids))
	for i, rec := range records {
		assert.Equal(t, ids[i], *rec.ID)
		assert.Equal(t, Confidence(87.5), *rec.Confidence)
		assert.Equal(t, time.Date(2024, 5, 1, 12, 34, 56, 789012000, time.UTC), rec.Timestamp.UTC())
	}
}

func TestFetchHistory_UserFilterAndEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("user"))
		_, _ = w.Write([]byte(`[]`))
	})

	user := UserID(7)
	records, err := client.FetchHistory(context.Background(), "secret", &user)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchHistory_NumericConfidence(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"user":2,"image":"a.png","predicted_class":"Fake","confidence":99.25,"timestamp":"2024-05-01T12:00:00Z"}]`))
	})

	records, err := client.FetchHistory(context.Background(), "secret", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, Confidence(99.25), *records[0].Confidence)
}

func TestFetchHistory_FetchError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	_, err := client.FetchHistory(context.Background(), "secret", nil)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Equal(t, "boom", fetchErr.Body)
	assert.Equal(t, OpGetHistory, fetchErr.Op)
}

func TestFetchHistory_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "object instead of array", body: `{"results": []}`},
		{name: "missing predicted_class", body: `[{"id":1,"user":2,"image":"a.png","confidence":1,"timestamp":"2024-05-01T12:00:00Z"}]`},
		{name: "missing id", body: `[{"user":2,"image":"a.png","predicted_class":"Fake","confidence":1,"timestamp":"2024-05-01T12:00:00Z"}]`},
		{name: "confidence not numeric", body: `[{"id":1,"user":2,"image":"a.png","predicted_class":"Fake","confidence":"high","timestamp":"2024-05-01T12:00:00Z"}]`},
		{name: "bad timestamp", body: `[{"id":1,"user":2,"image":"a.png","predicted_class":"Fake","confidence":1,"timestamp":"yesterday"}]`},
		{name: "empty body", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.FetchHistory(context.Background(), "secret", nil)

			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

func TestFetchUserReports(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user-service/reports/user_reports/", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("user"))
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":2,"user":7,"prediction":11,"reason":"wrong label"},{"id":1,"user":7}]`))
	})

	reports, err := client.FetchUserReports(context.Background(), 7, "secret")
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, int64(2), *reports[0].ID)
	assert.Equal(t, "wrong label", reports[0].Reason)
	assert.Equal(t, int64(1), *reports[1].ID)
}

func TestFetchUserReports_FetchError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.FetchUserReports(context.Background(), 7, "secret")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, OpGetReports, fetchErr.Op)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
}

func TestClient_SingleAttempt(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.FetchHistory(context.Background(), "secret", nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(url+"/user-service/", "", nil)
	require.NoError(t, err)

	_, err = client.FetchUserID(context.Background(), "secret")
	require.Error(t, err)

	var authErr *AuthError
	assert.False(t, errors.As(err, &authErr))
	assert.Equal(t, 0, StatusCode(err))
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(server.URL+"/user-service/", "", &http.Client{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = client.FetchHistory(context.Background(), "secret", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
