package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"libraripro/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{apperr.Validation(map[string]string{"bookId": "must be provided"}), http.StatusUnprocessableEntity, KindValidation},
		{fmt.Errorf("failed to issue book: %w", apperr.NotFound("member", "M009")), http.StatusNotFound, KindNotFound},
		{apperr.Conflict("book B001 is not available"), http.StatusConflict, KindConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError, KindInternal},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", nil)
		Error(rec, req, discard(), tc.err)

		assert.Equal(t, tc.status, rec.Code)

		var body struct {
			Error ErrorBody `json:"error"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, tc.kind, body.Error.Kind)
		if tc.kind == KindInternal {
			assert.NotContains(t, body.Error.Message, "disk on fire")
		}
	}
}

func TestErrorBodyRoundTripsToApperr(t *testing.T) {
	err := ErrorBody{Kind: KindNotFound, Entity: "transaction", ID: "T404"}.AsError()
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = ErrorBody{Kind: KindValidation, Fields: map[string]string{"dueDate": "must not be before issueDate"}}.AsError()
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must not be before issueDate", ve.Fields["dueDate"])

	assert.ErrorIs(t, ErrorBody{Kind: KindConflict, Message: "already returned"}.AsError(), apperr.ErrConflict)
}

func TestReadJSONRejectsTrailingData(t *testing.T) {
	var dst struct {
		BookID string `json:"bookId"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bookId":"B001"}{"bookId":"B002"}`))
	assert.Error(t, ReadJSON(httptest.NewRecorder(), req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bookId":"B001","extra":1}`))
	assert.Error(t, ReadJSON(httptest.NewRecorder(), req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bookId":"B001"}`))
	require.NoError(t, ReadJSON(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "B001", dst.BookID)
}
