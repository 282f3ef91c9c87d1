package main

// Exit codes.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (no repository, invalid config)
	ExitDataError   = 3 // Data error (unresolvable entity, invariant violation)
	ExitNotFound    = 4 // Requested record does not exist
	ExitRefused     = 5 // Operation refused (unauthorized weight application)
)
