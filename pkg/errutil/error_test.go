package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errSentinel = errors.New("sentinel")

func TestConstructorsKeepCause(t *testing.T) {
	err := Conflict("order already recorded", errSentinel, WithReason("DUPLICATE_CONVERSION"))

	require.ErrorIs(t, err, errSentinel)

	be, ok := As(fmt.Errorf("submit: %w", err))
	require.True(t, ok)
	require.Equal(t, StatusConflict, be.Status())
	require.Equal(t, "DUPLICATE_CONVERSION", be.Reason)
	require.Equal(t, http.StatusConflict, be.Code.HTTPStatus())
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusBadRequest:          http.StatusBadRequest,
		StatusNotFound:            http.StatusNotFound,
		StatusConflict:            http.StatusConflict,
		StatusUnprocessableEntity: http.StatusUnprocessableEntity,
		StatusInternal:            http.StatusInternalServerError,
		CoreStatus("whatever"):    http.StatusInternalServerError,
	}
	for in, want := range cases {
		require.Equal(t, want, in.HTTPStatus(), in)
	}
}

func TestToGRPCError(t *testing.T) {
	require.NoError(t, ToGRPCError(nil))

	err := ToGRPCError(NotFound("affiliate not found", nil, WithReason("UNKNOWN_AFFILIATE")))
	require.Equal(t, codes.NotFound, status.Code(err))
	require.Contains(t, err.Error(), "UNKNOWN_AFFILIATE")

	require.Equal(t, codes.Internal, status.Code(ToGRPCError(errors.New("boom"))))
}

func TestJSONShape(t *testing.T) {
	be := BaseError{Code: StatusBadRequest, Reason: "INVALID_AMOUNT", Message: "amount must be positive"}
	body, ok := be.JSON().(map[string]interface{})
	require.True(t, ok)
	inner := body["error"].(map[string]interface{})
	require.Equal(t, "INVALID_AMOUNT", inner["reason"])
	require.Equal(t, StatusBadRequest, inner["code"])
}
