package utils

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDataEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteData(w, http.StatusCreated, map[string]float64{"var_95": 3000}, zerolog.Nop())

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		Data     map[string]float64 `json:"data"`
		Metadata struct {
			Timestamp string `json:"timestamp"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3000.0, body.Data["var_95"])
	_, err := time.Parse(time.RFC3339, body.Metadata.Timestamp)
	assert.NoError(t, err)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "invalid series", zerolog.Nop())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid series"}`, w.Body.String())
}

func TestWriteJSONUnencodableValue(t *testing.T) {
	w := httptest.NewRecorder()
	WriteData(w, http.StatusOK, map[string]float64{"hours": math.Inf(1)}, zerolog.Nop())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"failed to encode response"}`, w.Body.String())
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Price float64 `json:"price"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price": 101.5}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, 101.5, dst.Price)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prize": 1}`))
	assert.Error(t, DecodeJSON(req, &dst))
}

func TestOperationTimer(t *testing.T) {
	done := OperationTimer("test", zerolog.Nop())
	assert.GreaterOrEqual(t, done(), time.Duration(0))
}
