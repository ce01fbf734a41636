package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxMessageLength is the upper bound on message text, in characters, after
// trimming and NFC normalization.
const MaxMessageLength = 500

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

var pageIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// NormalizeMessage trims surrounding whitespace and applies NFC so that a
// composed character counts once toward the length limit.
func NormalizeMessage(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// MessageLength returns the number of characters counted against
// MaxMessageLength.
func MessageLength(text string) int {
	return utf8.RuneCountInString(NormalizeMessage(text))
}

func ValidateMessage(text string) ValidationErrors {
	errs := make(ValidationErrors)

	if !utf8.ValidString(text) {
		errs.Add("text", "Message must be valid UTF-8")
		return errs
	}

	n := MessageLength(text)
	if n == 0 {
		errs.Add("text", "Message text is required")
	} else if n > MaxMessageLength {
		errs.Add("text", "Message is too long")
	}

	return errs
}

func ValidatePageID(pageID string) ValidationErrors {
	errs := make(ValidationErrors)

	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		errs.Add("page_id", "Page ID is required")
	} else if len(pageID) > 128 {
		errs.Add("page_id", "Page ID is too long")
	} else if !pageIDRegex.MatchString(pageID) {
		errs.Add("page_id", "Page ID can only contain letters, numbers, _ and -")
	}

	return errs
}

func ValidatePrincipal(id, displayName string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(id) == "" {
		errs.Add("user_id", "User ID is required")
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		errs.Add("display_name", "Display name is required")
	} else if len(displayName) < 2 {
		errs.Add("display_name", "Display name must be at least 2 characters")
	} else if len(displayName) > 100 {
		errs.Add("display_name", "Display name is too long")
	}

	return errs
}
