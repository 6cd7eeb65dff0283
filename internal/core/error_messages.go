package core

// error_messages.go maps technical errors to user-facing messages with
// support codes. Codes are grouped by category:
//
//	FILE001-FILE099  uploaded file problems (size, type, shape, parsing)
//	DS001-DS099      dataset lookup and persistence
//	REV001-REV099    metadata submissions and review transitions
//	VER001-VER099    data versioning
//	AI001-AI099      metadata generation
//	UPL001-UPL099    request lifecycle (busy, cancelled, timed out)
//	ERR000           fallback; check the server logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "exceeds the limit",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Upload a file smaller than 10MB",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid file type",
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a .csv, .xlsx or .xls file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "error parsing",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check that the file is a valid spreadsheet and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file uploaded",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Choose a file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "file is empty",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row and at least one data row",
			Code:    "FILE005",
		},
	},

	// Review errors
	{
		pattern: "comment is required",
		msg: UserMessage{
			Message: "A review comment is required for admin actions",
			Action:  "Add a comment explaining the decision",
			Code:    "REV001",
		},
	},
	{
		pattern: "invalid role",
		msg: UserMessage{
			Message: "The submitting role is not recognised",
			Action:  "Select the editor or admin role",
			Code:    "REV002",
		},
	},
	{
		pattern: "only admins",
		msg: UserMessage{
			Message: "Only admins can approve or request changes",
			Action:  "Switch to the admin role or submit for review",
			Code:    "REV003",
		},
	},
	{
		pattern: "cannot move",
		msg: UserMessage{
			Message: "This action is not available in the dataset's current state",
			Action:  "Refresh the dataset to see its latest status",
			Code:    "REV004",
		},
	},
	{
		pattern: "cannot exceed",
		msg: UserMessage{
			Message: "Some metadata fields are too long",
			Action:  "Shorten the highlighted fields and resubmit",
			Code:    "REV005",
		},
	},
	{
		pattern: "invalid status",
		msg: UserMessage{
			Message: "The requested review status is not valid",
			Action:  "Choose under review, approved or changes requested",
			Code:    "REV006",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The submission could not be read",
			Action:  "Send a JSON body with metadata, role, status and comment",
			Code:    "REV007",
		},
	},

	// Versioning errors
	{
		pattern: "must be approved",
		msg: UserMessage{
			Message: "New versions can only be uploaded for approved datasets",
			Action:  "Finish the review before uploading new data",
			Code:    "VER001",
		},
	},

	// Dataset errors
	{
		pattern: "dataset not found",
		msg: UserMessage{
			Message: "Dataset not found",
			Action:  "It may have been deleted. Return to the dataset list",
			Code:    "DS001",
		},
	},
	{
		pattern: "concurrent modification",
		msg: UserMessage{
			Message: "The dataset was changed by someone else",
			Action:  "Reload the dataset and try again",
			Code:    "DS002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DS003",
		},
	},

	// Metadata generation errors
	{
		pattern: "circuit breaker is open",
		msg: UserMessage{
			Message: "Metadata generation is temporarily unavailable",
			Action:  "Edit the metadata manually or try again later",
			Code:    "AI001",
		},
	},
	{
		pattern: "generator not configured",
		msg: UserMessage{
			Message: "Metadata generation is not configured",
			Action:  "Edit the metadata manually",
			Code:    "AI002",
		},
	},

	// Request lifecycle errors
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading a smaller file or check your connection",
			Code:    "UPL005",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
