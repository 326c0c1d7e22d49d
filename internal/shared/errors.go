package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrMissingCookies   = fmt.Errorf("missing required cookies")
	ErrInvalidAuthBlob  = fmt.Errorf("invalid auth blob")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Transport and platform errors
	ErrRequestFailed      = fmt.Errorf("request failed")
	ErrAborted            = fmt.Errorf("request aborted")
	ErrBusiness           = fmt.Errorf("platform rejected request")
	ErrDomainNotAllowed   = fmt.Errorf("domain not allowed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Lookup errors
	ErrAccountNotFound  = fmt.Errorf("account not found")
	ErrTaskNotFound     = fmt.Errorf("task not found")
	ErrBatchRunNotFound = fmt.Errorf("batch run not found")

	// Task errors
	ErrInvalidTransition     = fmt.Errorf("invalid task transition")
	ErrNoPublishableAccounts = fmt.Errorf("没有可发布的账号")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
