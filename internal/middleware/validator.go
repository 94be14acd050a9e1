package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

var identPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// ValidateTenantID checks tenant identifier format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !identPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format")
	}
	return nil
}

// ValidateSystemID checks AI system identifier format
func ValidateSystemID(id string) error {
	if id == "" {
		return fmt.Errorf("system_id cannot be empty")
	}
	if !identPattern.MatchString(id) {
		return fmt.Errorf("invalid system_id format")
	}
	return nil
}

// ValidateFrameworkID checks framework identifier format (e.g. eu-ai-act-v1)
func ValidateFrameworkID(id string) error {
	if id == "" {
		return fmt.Errorf("framework_id cannot be empty")
	}
	if !identPattern.MatchString(id) {
		return fmt.Errorf("invalid framework_id format")
	}
	// Block dangerous patterns
	dangerous := []string{"../", "$(", "`", "&", "|", ";", "\n", "\r"}
	for _, d := range dangerous {
		if strings.Contains(id, d) {
			return fmt.Errorf("invalid characters in framework_id")
		}
	}
	return nil
}

// ValidateLimit clamps paging limits to a sane range
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 200 {
		return 200
	}
	return limit
}
