package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Temporary(t *testing.T) {
	tests := []struct {
		err  APIError
		want bool
	}{
		{APIError{StatusCode: http.StatusServiceUnavailable}, true},
		{APIError{StatusCode: http.StatusTooManyRequests}, true},
		{APIError{StatusCode: http.StatusForbidden}, false},
		{APIError{StatusCode: http.StatusOK, Status: "OVER_QUERY_LIMIT"}, true},
		{APIError{StatusCode: http.StatusOK, Status: "UNKNOWN_ERROR"}, true},
		{APIError{StatusCode: http.StatusOK, Status: "REQUEST_DENIED"}, false},
		{APIError{StatusCode: http.StatusOK, Status: "INVALID_REQUEST"}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Temporary(), "%+v", tt.err)
	}
}

func TestGoogleGeocode_OverQueryLimitIsAPIError(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"status": "OVER_QUERY_LIMIT", "results": []}`))
	defer srv.Close()

	_, err := newTestGeocoder(srv).Geocode(context.Background(), "Jalan Ampang")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "OVER_QUERY_LIMIT", apiErr.Status)
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, "geocode: google status OVER_QUERY_LIMIT", apiErr.Error())
}
