package main

// Exit codes
const (
	ExitSuccess       = 0 // Success
	ExitError         = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError   = 2 // Configuration error (missing config, no owner)
	ExitDataError     = 3 // Data error (malformed input, validation failure)
	ExitNotFound      = 4 // Record not found
	ExitNotAuthorized = 5 // Record belongs to another owner
	ExitFetchError    = 6 // Provider unreachable or rejected the request
	ExitStoreError    = 7 // Store failure; nothing was committed
)
