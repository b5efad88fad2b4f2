package errs

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("disagree item-1: %w", Validation(CodeResponseRequired, "response is required"))

	assert.True(t, IsValidation(err))
	assert.False(t, IsAuthorization(err))
	assert.Equal(t, CodeResponseRequired, CodeOf(err))
	assert.Contains(t, err.Error(), "ITEM_RESPONSE_REQUIRED")
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation(CodeNoteRequired, "x"), http.StatusBadRequest},
		{Authorization(CodeExamLocked, "x"), http.StatusForbidden},
		{NotFound("item", "i-1"), http.StatusNotFound},
		{Concurrency("x"), http.StatusConflict},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestUnclassified(t *testing.T) {
	err := fmt.Errorf("plain")
	assert.Equal(t, Kind(""), KindOf(err))
	assert.Equal(t, Code(""), CodeOf(err))
}
