package handler

import (
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "gosocial-messaging/pkg/errors"
)

const internalMessage = "internal server error"

// httpStatus maps an error code to the REST status.
func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(code apperrors.Code) codes.Code {
	switch code {
	case apperrors.CodeInvalidArgument:
		return codes.InvalidArgument
	case apperrors.CodeUnauthenticated:
		return codes.Unauthenticated
	case apperrors.CodeNotFound:
		return codes.NotFound
	case apperrors.CodeRateLimited:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// publicMessage hides internal causes from clients.
func publicMessage(err error) string {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code == apperrors.CodeInternal {
		return internalMessage
	}
	return appErr.Message
}

// toStatus converts a service error into a gRPC status. Validation errors
// carry a BadRequest detail naming the offending field.
func toStatus(err error) error {
	code := apperrors.CodeOf(err)
	st := status.New(grpcCode(code), publicMessage(err))

	if appErr, ok := apperrors.As(err); ok && code == apperrors.CodeInvalidArgument && appErr.Field != "" {
		detailed, derr := st.WithDetails(&errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{
				{Field: appErr.Field, Description: appErr.Message},
			},
		})
		if derr == nil {
			st = detailed
		}
	}
	return st.Err()
}

// FromStatus turns a status returned by the chat service back into an
// AppError. Errors that carry no status pass through unchanged.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	appErr := &apperrors.AppError{Message: st.Message()}
	switch st.Code() {
	case codes.InvalidArgument:
		appErr.Code = apperrors.CodeInvalidArgument
	case codes.Unauthenticated:
		appErr.Code = apperrors.CodeUnauthenticated
	case codes.NotFound:
		appErr.Code = apperrors.CodeNotFound
	case codes.ResourceExhausted:
		appErr.Code = apperrors.CodeRateLimited
	case codes.Canceled, codes.DeadlineExceeded:
		return err
	default:
		appErr.Code = apperrors.CodeInternal
		appErr.Cause = err
	}
	for _, d := range st.Details() {
		if br, ok := d.(*errdetails.BadRequest); ok && len(br.FieldViolations) > 0 {
			appErr.Field = br.FieldViolations[0].Field
		}
	}
	return appErr
}
