package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTenantID(t *testing.T) {
	valid := []string{"acme", "acme-corp", "t.1", "A1_b"}
	for _, v := range valid {
		assert.NoError(t, ValidateTenantID(v), v)
	}

	invalid := []string{"", "-leading", "has space", "semi;colon", "sla/sh",
		"waytoolong" + string(make([]byte, 64))}
	for _, v := range invalid {
		assert.Error(t, ValidateTenantID(v), v)
	}
}

func TestValidateFrameworkID(t *testing.T) {
	assert.NoError(t, ValidateFrameworkID("eu-ai-act"))
	assert.NoError(t, ValidateFrameworkID("iso_42001.v2"))
	assert.Error(t, ValidateFrameworkID(""))
	assert.Error(t, ValidateFrameworkID("../etc/passwd"))
	assert.Error(t, ValidateFrameworkID("a|b"))
}

func TestValidateLimit(t *testing.T) {
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 20, ValidateLimit(-5))
	assert.Equal(t, 7, ValidateLimit(7))
	assert.Equal(t, 200, ValidateLimit(10000))
}
