package helpers

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventregistration/internal/domain"
)

func TestWriteDomainError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		retryAfter bool
	}{
		{"invalid input", fmt.Errorf("%w: title is required", domain.ErrInvalidInput), http.StatusBadRequest, ErrCodeBadRequest, false},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, ErrCodeForbidden, false},
		{"event not found", domain.ErrEventNotFound, http.StatusNotFound, ErrCodeNotFound, false},
		{"registration not found", domain.ErrRegistrationNotFound, http.StatusNotFound, ErrCodeNotFound, false},
		{"already registered", domain.ErrAlreadyRegistered, http.StatusConflict, ErrCodeConflict, false},
		{"event full", domain.ErrEventFull, http.StatusConflict, ErrCodeConflict, false},
		{"not open", domain.ErrEventNotOpen, http.StatusConflict, ErrCodeConflict, false},
		{"transient", fmt.Errorf("%w: version conflict", domain.ErrTransientConflict), http.StatusServiceUnavailable, ErrCodeTransientConflict, true},
		{"store", fmt.Errorf("%w: dial tcp", domain.ErrStoreUnavailable), http.StatusServiceUnavailable, ErrCodeStoreUnavailable, false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/registrations/ev-1", nil)

			WriteDomainError(rr, req, logger, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body APIResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Nil(t, body.Data)
			assert.Equal(t, tt.retryAfter, rr.Header().Get("Retry-After") != "")
		})
	}
}

type createReq struct {
	Title string `json:"title"`
}

func (c createReq) Validate() []string {
	if c.Title == "" {
		return []string{"title is required"}
	}
	return nil
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantOK bool
	}{
		{"valid", `{"title":"Go"}`, true},
		{"fails validation", `{"title":""}`, false},
		{"unknown field", `{"title":"Go","seats":3}`, false},
		{"malformed", `{`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(tt.body))
			var dest createReq

			ok := DecodeAndValidate(rr, req, &dest)

			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				assert.Equal(t, http.StatusBadRequest, rr.Code)
			}
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query        string
		wantPage     int
		wantPageSize int
		wantErr      bool
	}{
		{query: "", wantPage: DefaultPage, wantPageSize: DefaultPageSize},
		{query: "page=3&page_size=10", wantPage: 3, wantPageSize: 10},
		{query: "page_size=1000", wantPage: DefaultPage, wantPageSize: MaxPageSize},
		{query: "page=0", wantErr: true},
		{query: "page_size=-1", wantErr: true},
		{query: "page=x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/events?"+tt.query, nil)
			p, err := ParsePagination(req)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantPageSize, p.PageSize)
		})
	}
}

func TestNewPaginationMeta(t *testing.T) {
	assert.Equal(t,
		PaginationMeta{Page: 2, PageSize: 10, Total: 21, TotalPages: 3, HasNext: true},
		NewPaginationMeta(domain.PaginationParams{Page: 2, PageSize: 10}, 21))
	assert.Equal(t,
		PaginationMeta{Page: 3, PageSize: 10, Total: 21, TotalPages: 3},
		NewPaginationMeta(domain.PaginationParams{Page: 3, PageSize: 10}, 21))
	assert.Equal(t,
		PaginationMeta{Page: 1, PageSize: 20},
		NewPaginationMeta(domain.PaginationParams{Page: 1, PageSize: 20}, 0))
}
