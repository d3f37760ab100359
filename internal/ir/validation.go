package ir

import "fmt"

// Validation error codes (E100-E199)
const (
	ErrInvalidName      = "E101" // group name does not match the name grammar
	ErrDuplicateName    = "E102" // two enabled groups of one kind share a name
	ErrInvalidPattern   = "E103" // pattern expression is malformed
	ErrUnknownReference = "E104" // pattern references an undefined group
	ErrInvalidRoleRef   = "E105" // role ref is missing space or role id
	ErrUnknownCheck     = "E106" // checks map names an unknown kind
	ErrInvalidEntity    = "E107" // empty entity id in a list
)

// ValidationError represents a settings validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`

	// Warning marks findings that do not make the settings unusable.
	Warning bool `json:"warning,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}
