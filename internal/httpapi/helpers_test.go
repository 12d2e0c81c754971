package httpapi

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/beaconobs/internal/export"
	"github.com/nextlevelbuilder/beaconobs/internal/intake"
	"github.com/nextlevelbuilder/beaconobs/internal/llm"
	"github.com/nextlevelbuilder/beaconobs/internal/replay"
	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

func TestStatusForErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &intake.ValidationError{Msg: "bad"}, http.StatusUnprocessableEntity},
		{"not found", &store.ErrNotFound{Kind: "trace", ID: "t1"}, http.StatusNotFound},
		{"conflict", &store.ErrConflict{Msg: "dup"}, http.StatusConflict},
		{"replay bad request", &replay.BadRequestError{Msg: "not an llm_call"}, http.StatusBadRequest},
		{"bad envelope", &export.BadEnvelopeError{Msg: "wrong version"}, http.StatusBadRequest},
		{"upstream llm error", &llm.HTTPError{Status: 503, Body: "unavailable"}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, statusFor(c.err))
		})
	}
}

func TestStatusForWrappedError(t *testing.T) {
	err := errors.New("wrapper: " + (&store.ErrNotFound{Kind: "span", ID: "s1"}).Error())
	require.Equal(t, http.StatusInternalServerError, statusFor(err), "plain string-wrapped errors don't unwrap via errors.As")

	wrapped := errorsWrap(&store.ErrNotFound{Kind: "span", ID: "s1"})
	require.Equal(t, http.StatusNotFound, statusFor(wrapped))
}

func errorsWrap(err error) error {
	return &wrappedErr{err}
}

type wrappedErr struct{ err error }

func (w *wrappedErr) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrappedErr) Unwrap() error { return w.err }

func TestExtractBearerToken(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, extractBearerToken(req))

	req.Header.Set("Authorization", "Bearer secret-token")
	require.Equal(t, "secret-token", extractBearerToken(req))

	req.Header.Set("Authorization", "Basic abc123")
	require.Empty(t, extractBearerToken(req))
}
