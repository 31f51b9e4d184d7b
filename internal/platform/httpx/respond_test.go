package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

func TestRespondErrorCarriesCode(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, nil, shared.State("ONLY_DRAFT_CAN_BE_CANCELLED", "receipt is posted"))

	require.Equal(t, http.StatusConflict, rr.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ONLY_DRAFT_CAN_BE_CANCELLED", body.Code)
	require.Equal(t, "receipt is posted", body.Detail)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, nil, errors.New("dial tcp: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(shared.KindValidation))
	require.Equal(t, http.StatusNotFound, StatusFor(shared.KindNotFound))
	require.Equal(t, http.StatusConflict, StatusFor(shared.KindConflict))
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	var target struct {
		Code string `json:"code"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"KG"} {"code":"G"}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Code string `json:"code"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"KG","factor":2}`))
	require.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), req, &target), ErrBadRequest)
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	var target map[string]string
	body := `{"note":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	require.ErrorIs(t, err, ErrBadRequest)
	require.Contains(t, err.Error(), "exceeds")
}

func TestProblemDefaultsType(t *testing.T) {
	rr := httptest.NewRecorder()
	Problem(rr, http.StatusServiceUnavailable, "Service Unavailable", "queue down")
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "about:blank", body.Type)
	require.Equal(t, "queue down", body.Detail)
}
