package request

import (
	"strings"
)

// Response summarizes a completed (or failed) exchange. A transport
// failure is recorded with Status 0 and the error message in Data.
type Response struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Data       any               `json:"data"`
	Headers    map[string]string `json:"headers"`
	// Duration is the round trip in milliseconds.
	Duration int64 `json:"duration"`
	Size     int64 `json:"size,omitempty"`
}

// Failed reports whether the response represents a transport failure.
func (r *Response) Failed() bool {
	return r != nil && r.Status == 0
}

// FailureResponse builds the status-0 response recorded for a transport
// error.
func FailureResponse(err error, durationMs int64) *Response {
	msg := err.Error()
	return &Response{
		Status:     0,
		StatusText: msg,
		Data:       map[string]any{"error": msg},
		Headers:    map[string]string{},
		Duration:   durationMs,
	}
}

// IsBinary detects binary payloads from the content type and the share of
// NUL bytes in body.
func IsBinary(contentType string, body []byte) bool {
	binaryTypes := []string{
		"image/", "video/", "audio/",
		"application/octet-stream",
		"application/zip", "application/gzip",
		"application/pdf", "application/msword",
		"application/vnd.ms-", "application/vnd.openxmlformats-",
	}

	contentType = strings.ToLower(contentType)
	for _, binaryType := range binaryTypes {
		if strings.HasPrefix(contentType, binaryType) {
			return true
		}
	}

	nullCount := 0
	for _, b := range body {
		if b == 0 {
			nullCount++
		}
	}
	// More than 10% NUL bytes
	return len(body) > 0 && nullCount > len(body)/10
}
