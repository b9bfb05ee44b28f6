package jobservice

import "errors"

var (
	ErrNoDownloadURL       = errors.New("No download URL received from server")
	ErrInvalidResponse     = errors.New("Server returned an invalid response. Please try again.")
	ErrUnparseableResponse = errors.New("Failed to parse server response. Please try again.")
	ErrStatusUnavailable   = errors.New("Failed to get download status")
)

// ServiceError carries a message the service reported itself.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}
