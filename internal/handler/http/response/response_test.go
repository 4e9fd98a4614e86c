package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSuccessHelpers(t *testing.T) {
	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		check func(t *testing.T, body Response)
	}{
		{
			name:  "plain",
			write: func(w http.ResponseWriter) { Success(w, map[string]int{"paid": 2}) },
			check: func(t *testing.T, body Response) { assert.Empty(t, body.Message) },
		},
		{
			name:  "with message",
			write: func(w http.ResponseWriter) { SuccessWithMessage(w, "Salary structure saved", map[string]int{"paid": 2}) },
			check: func(t *testing.T, body Response) { assert.Equal(t, "Salary structure saved", body.Message) },
		},
		{
			name:  "with meta",
			write: func(w http.ResponseWriter) { SuccessWithMeta(w, map[string]int{"paid": 2}, &Meta{Page: 2, Limit: 50, TotalItems: 120, TotalPages: 3}) },
			check: func(t *testing.T, body Response) {
				require.NotNil(t, body.Meta)
				assert.Equal(t, 3, body.Meta.TotalPages)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			// Every write endpoint answers 200, including upserts and generate.
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decode(t, rec)
			assert.True(t, body.Success)
			assert.Nil(t, body.Error)
			assert.NotNil(t, body.Data)
			tt.check(t, body)
		})
	}
}

func TestPreconditionFailed_CarriesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	PreconditionFailed(rec, "lines are not approved", map[string]string{"line-1": "generated"})

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	body := decode(t, rec)
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "PRECONDITION_FAILED", body.Error.Code)
	assert.Equal(t, "generated", body.Error.Details["line-1"])
}
