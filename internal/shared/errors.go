package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Upload transport errors. Each terminates the submit attempt without
	// side effects on the job state.
	ErrFileTooLarge    = fmt.Errorf("file too large")
	ErrDecodeFailed    = fmt.Errorf("audio decode failed")
	ErrTooShort        = fmt.Errorf("audio duration too short")
	ErrUnsupportedType = fmt.Errorf("unsupported file type")
	ErrDailyLimit      = fmt.Errorf("daily upload limit reached")
	ErrUploadFailed    = fmt.Errorf("upload failed")

	// Task lifecycle errors
	ErrTaskNotFound = fmt.Errorf("task not found")
	ErrTaskExpired  = fmt.Errorf("task expired or missing")
	ErrTaskFailed   = fmt.Errorf("task failed")
	ErrTimeout      = fmt.Errorf("processing timed out")
	ErrAPIRequest   = fmt.Errorf("API request failed")
	ErrNoActiveJob  = fmt.Errorf("no active job")
	ErrJobRunning   = fmt.Errorf("job already running")

	// Segment editing errors (local, recoverable)
	ErrInvalidSegment = fmt.Errorf("invalid segment bounds")

	// Export errors (local, recoverable)
	ErrSubscriptionRequired = fmt.Errorf("subscription required")
	ErrExportFailed         = fmt.Errorf("export failed")
	ErrExportInFlight       = fmt.Errorf("export already in progress")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
