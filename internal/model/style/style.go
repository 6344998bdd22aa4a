package style

import (
	"fmt"
	"strings"
)

// Style selects how the tutor explains a solution. The relay turns it into
// part of the system instruction; clients only forward it.
type Style string

const (
	StepByStep Style = "step-by-step"
	Concise    Style = "concise"
	ExamStyle  Style = "exam style"
	Intuition  Style = "intuition"
)

// Default is used when a request does not name a style.
const Default = StepByStep

// Option describes a style as offered to the user.
type Option struct {
	ID          Style  `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Seed returns the teaching modes offered by the tutor, in menu order.
func Seed() []Option {
	return []Option{
		{
			ID:          StepByStep,
			Label:       "Step-by-Step",
			Description: "Detailed derivations with every intermediate matrix shown.",
		},
		{
			ID:          Concise,
			Label:       "Concise Output",
			Description: "Minimal working, straight to the result.",
		},
		{
			ID:          ExamStyle,
			Label:       "Exam Preparation",
			Description: "Clean steps and a boxed final answer, as expected in an exam.",
		},
		{
			ID:          Intuition,
			Label:       "Intuition & Concepts",
			Description: "Emphasizes geometric meaning and reasoning over computation.",
		},
	}
}

// Parse maps user input onto a known style. Empty input yields Default.
func Parse(raw string) (Style, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return Default, nil
	}
	for _, opt := range Seed() {
		if string(opt.ID) == value {
			return opt.ID, nil
		}
	}
	// Accept the dashed spelling of "exam style" used on command lines.
	if value == "exam-style" {
		return ExamStyle, nil
	}
	return "", fmt.Errorf("unknown teaching style %q", raw)
}

// Valid reports whether s is one of the known styles.
func (s Style) Valid() bool {
	for _, opt := range Seed() {
		if opt.ID == s {
			return true
		}
	}
	return false
}

// Next returns the style after s in menu order, wrapping around.
func (s Style) Next() Style {
	options := Seed()
	for i, opt := range options {
		if opt.ID == s {
			return options[(i+1)%len(options)].ID
		}
	}
	return Default
}

// Label returns the display name of s.
func (s Style) Label() string {
	for _, opt := range Seed() {
		if opt.ID == s {
			return opt.Label
		}
	}
	return string(s)
}
