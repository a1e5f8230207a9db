// Package prompts carries the built-in analysis prompt texts.
package prompts

import (
	_ "embed"
	"strings"
)

//go:embed default.txt
var defaultPrompt string

//go:embed custom.txt
var customPrompt string

// Default is the general-purpose analysis prompt.
func Default() string { return strings.TrimSpace(defaultPrompt) }

// Custom is the argument-focused analysis prompt offered as an alternative.
func Custom() string { return strings.TrimSpace(customPrompt) }
