package player

import "fmt"

// MediaErrorCode classifies a failed source the way a media element does.
type MediaErrorCode int

const (
	MediaErrAborted MediaErrorCode = iota + 1
	MediaErrNetwork
	MediaErrDecode
	MediaErrFormat
)

func (c MediaErrorCode) String() string {
	switch c {
	case MediaErrAborted:
		return "aborted"
	case MediaErrNetwork:
		return "network"
	case MediaErrDecode:
		return "decode"
	case MediaErrFormat:
		return "format"
	default:
		return "unknown"
	}
}

// MediaError is reported with EventError.
type MediaError struct {
	Code   MediaErrorCode
	Detail string
}

func (e *MediaError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("media %s error", e.Code)
	}
	return fmt.Sprintf("media %s error: %s", e.Code, e.Detail)
}
