package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ClientIDRegex validates client identity format
	ClientIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// GroupNameRegex validates group name format
	GroupNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateClientID validates a client identity
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if len(clientID) > 100 {
		return fmt.Errorf("client ID is too long (max 100 characters)")
	}
	if !ClientIDRegex.MatchString(clientID) {
		return fmt.Errorf("invalid client ID format")
	}
	return nil
}

// ValidateGroupName validates a chat group name
func ValidateGroupName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("group name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("group name is too long (max 100 characters)")
	}
	if !GroupNameRegex.MatchString(name) {
		return fmt.Errorf("group name contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateFilename validates a voice note filename. Path separators and
// traversal components are rejected because filenames end up joined onto
// the history directory.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	if len(name) > 255 {
		return fmt.Errorf("filename is too long (max 255 characters)")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("filename must not contain path components")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("filename contains invalid characters")
	}
	return nil
}

// ValidateMessage validates a chat message body. The backend protocol is
// line-oriented, so embedded newlines would be read as separate commands.
func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message is required")
	}
	if len(message) > 4096 {
		return fmt.Errorf("message is too long (max 4096 bytes)")
	}
	if strings.ContainsAny(message, "\r\n") {
		return fmt.Errorf("message must not contain line breaks")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
