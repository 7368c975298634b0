package httpx

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONForbidsIntermediaryCaching(t *testing.T) {
	rec := httptest.NewRecorder()

	JSON(rec, 200, map[string]string{"status": "ok"})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestProblemShape(t *testing.T) {
	rec := httptest.NewRecorder()

	Problem(rec, 409, "Conflict", "number already used")

	require.Equal(t, 409, rec.Code)
	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	assert.Equal(t, 409, pd.Status)
	assert.Equal(t, "Conflict", pd.Title)
	assert.Equal(t, "number already used", pd.Detail)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dto struct {
		AmountNet string `json:"amount_net"`
	}

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"ammount_net":"10.00"}`))
	err := DecodeJSON(req, &dto)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ammount_net")
}
