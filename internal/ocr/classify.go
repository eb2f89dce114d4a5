package ocr

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// credentialMarkers appear in INVALID_ARGUMENT responses caused by a bad key.
var credentialMarkers = []string{"API_KEY_INVALID", "API key not valid", "API key expired"}

// Classify maps a failed OCR call onto an Outcome. err is expected to carry a
// gRPC status (see FromHTTP); anything else classifies as Unknown and
// therefore as an empty result.
func Classify(err error) Outcome {
	if err == nil {
		return Empty("no error and no text")
	}
	st := status.Convert(err)
	msg := st.Message()

	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return Fatal(msg)
	case codes.InvalidArgument:
		for _, m := range credentialMarkers {
			if strings.Contains(msg, m) {
				return Fatal(msg)
			}
		}
		return Empty(msg)
	case codes.ResourceExhausted:
		return RateLimited(msg)
	case codes.Unavailable, codes.Internal, codes.DeadlineExceeded, codes.Canceled:
		// a canceled call never produced an answer; the retry loop decides whether to go on
		return Transient(msg)
	default:
		return Empty(msg)
	}
}

// ClassifyText turns a successful response body into Success or Empty.
func ClassifyText(text string) Outcome {
	if t := NormalizeText(text); t != "" {
		return Success(t)
	}
	return Empty("blank response")
}

// httpToCode maps HTTP statuses for error bodies that carry no google.rpc status name.
func httpToCode(httpStatus int) codes.Code {
	switch httpStatus {
	case 400:
		return codes.InvalidArgument
	case 401:
		return codes.Unauthenticated
	case 403:
		return codes.PermissionDenied
	case 404:
		return codes.NotFound
	case 408, 504:
		return codes.DeadlineExceeded
	case 429:
		return codes.ResourceExhausted
	case 500:
		return codes.Internal
	case 502, 503:
		return codes.Unavailable
	}
	return codes.Unknown
}

// FromHTTP builds a status error from an HTTP status and the service's
// status name (e.g. "RESOURCE_EXHAUSTED"); an unknown name falls back to
// the HTTP mapping.
func FromHTTP(httpStatus int, statusName, message string) error {
	code := httpToCode(httpStatus)
	if statusName != "" {
		var c codes.Code
		if err := c.UnmarshalJSON([]byte(`"` + statusName + `"`)); err == nil {
			code = c
		}
	}
	if message == "" {
		message = statusName
	}
	return status.Errorf(code, "http %d: %s", httpStatus, message)
}
