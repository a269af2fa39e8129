package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

var errRoomNotFound = New(ErrCodeRoomNotFound, "room not found")

func TestIs_MatchesByCode(t *testing.T) {
	req := require.New(t)

	wrapped := fmt.Errorf("join: %w", New(ErrCodeRoomNotFound, "no room with code ABC123"))
	req.True(stderrors.Is(wrapped, errRoomNotFound))
	req.False(stderrors.Is(wrapped, New(ErrCodeTeamFull, "team full")))
}

func TestWrap_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := Wrap(cause, ErrCodePersistence, "failed to save room")

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "PERSISTENCE_ERROR")
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", New(ErrCodeValidation, "bad"), http.StatusBadRequest},
		{"not found", errRoomNotFound, http.StatusNotFound},
		{"duplicate", New(ErrCodeDuplicateSubmission, "dup"), http.StatusConflict},
		{"timeout", New(ErrCodeStoreTimeout, "slow"), http.StatusServiceUnavailable},
		{"room unavailable", New(ErrCodeRoomUnavailable, "stopped"), http.StatusServiceUnavailable},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Fatalf("HTTPStatus: got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPublic(t *testing.T) {
	require.True(t, Public(errRoomNotFound))
	require.False(t, Public(New(ErrCodePersistence, "redis down")))
	require.False(t, Public(stderrors.New("boom")))
}

func TestPublicMessage(t *testing.T) {
	require.Equal(t, "room not found", PublicMessage(fmt.Errorf("join: %w", errRoomNotFound)))
	require.Equal(t, "internal error", PublicMessage(New(ErrCodePersistence, "redis down at 10.0.0.3")))
	require.Equal(t, "internal error", PublicMessage(stderrors.New("boom")))
}
