// Package backend runs validation runs submitted over HTTP: it stores each
// run, evaluates the uploaded files in the background and keeps the result
// for polling.
//
// # Error Codes Reference
//
// errors.go defines user-friendly error messages with codes for support
// reference. The HTTP layer renders them next to the technical error.
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run not found: The requested run does not exist
//	         Action: It may have been purged. Start a new run
//	         Patterns: "run not found"
//
//	RUN002 - System busy: Too many runs in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many concurrent runs"
//
//	RUN003 - Run timed out: Processing took too long
//	         Action: Try fewer or smaller files
//	         Patterns: "run timed out", "context deadline exceeded"
//
//	RUN004 - Request cancelled: Request was cancelled
//	         Action: Please try again
//	         Patterns: "context canceled"
//
//	RUN005 - Not ready: Blockers must be resolved first
//	         Action: Fix the blocking issues and validate again
//	         Patterns: "not ready"
//
//	RUN006 - Still processing: The run has not finished yet
//	         Action: Poll the run until it completes
//	         Patterns: "run still processing"
//
//	RUN007 - Export disabled: Export is not configured on this server
//	         Action: Ask an administrator to configure object storage
//	         Patterns: "export is not configured"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds maximum size limit
//	          Action: Split the file into smaller chunks
//	          Patterns: "file too large"
//
//	FILE002 - No file: No file was uploaded
//	          Action: Attach at least one CSV file
//	          Patterns: "no file provided"
//
//	FILE003 - Invalid upload: The request body could not be read
//	          Action: Send files as multipart/form-data
//	          Patterns: "invalid multipart", "request body too large"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Invalid mapping: The mapping field is not valid JSON
//	         Action: Send mapping as a JSON array of file entries
//	         Patterns: "invalid mapping"
//
//	MAP002 - Mapping not found: The saved mapping does not exist
//	         Action: List saved mappings and retry with a valid id
//	         Patterns: "mapping configuration not found"
//
//	MAP003 - Name required: A saved mapping needs a name
//	         Action: Provide a non-empty name
//	         Patterns: "name is required"
//
//	MAP004 - Template not found: The schema template does not exist
//	         Action: List templates and use one of their ids
//	         Patterns: "template not found"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused: Unable to connect to database
//	        Action: Please try again in a few moments
//	        Patterns: "connection refused"
//
//	DB002 - Connection reset: Database connection was interrupted
//	        Action: Please try again
//	        Patterns: "connection reset"
//
//	DB003 - Duplicate key: A record with this ID already exists
//	        Action: Please try again
//	        Patterns: "duplicate key"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.
package backend

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// UserError is an error whose text is safe to show as-is, paired with a
// support code.
type UserError struct {
	Msg UserMessage
	Err error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg.Message
}

func (e *UserError) Unwrap() error { return e.Err }

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Run errors
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "The requested run does not exist",
			Action:  "It may have been purged. Start a new run",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "System is busy processing other runs",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "run timed out",
		msg: UserMessage{
			Message: "Processing took too long",
			Action:  "Try fewer or smaller files",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Processing took too long",
			Action:  "Try fewer or smaller files",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN004",
		},
	},
	{
		pattern: "not ready",
		msg: UserMessage{
			Message: "Blocking issues must be resolved first",
			Action:  "Fix the blocking issues and validate again",
			Code:    "RUN005",
		},
	},
	{
		pattern: "run still processing",
		msg: UserMessage{
			Message: "The run has not finished yet",
			Action:  "Poll the run until it completes",
			Code:    "RUN006",
		},
	},
	{
		pattern: "export is not configured",
		msg: UserMessage{
			Message: "Export is not configured on this server",
			Action:  "Ask an administrator to configure object storage",
			Code:    "RUN007",
		},
	},

	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was uploaded",
			Action:  "Attach at least one CSV file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid multipart",
		msg: UserMessage{
			Message: "The request body could not be read",
			Action:  "Send files as multipart/form-data",
			Code:    "FILE003",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "The request body could not be read",
			Action:  "Send files as multipart/form-data",
			Code:    "FILE003",
		},
	},

	// Mapping errors
	{
		pattern: "invalid mapping",
		msg: UserMessage{
			Message: "The mapping field is not valid JSON",
			Action:  "Send mapping as a JSON array of file entries",
			Code:    "MAP001",
		},
	},
	{
		pattern: "mapping configuration not found",
		msg: UserMessage{
			Message: "The saved mapping does not exist",
			Action:  "List saved mappings and retry with a valid id",
			Code:    "MAP002",
		},
	},
	{
		pattern: "name is required",
		msg: UserMessage{
			Message: "A saved mapping needs a name",
			Action:  "Provide a non-empty name",
			Code:    "MAP003",
		},
	},
	{
		pattern: "template not found",
		msg: UserMessage{
			Message: "The schema template does not exist",
			Action:  "List templates and use one of their ids",
			Code:    "MAP004",
		},
	},

	// Database errors
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// A *UserError in the chain wins over pattern matching.
//
// Example:
//
//	msg := MapError(ErrNotFound)
//	// msg.Code == "RUN001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
