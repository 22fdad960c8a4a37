package templates

import "errors"

// Engine and repository errors.
var (
	ErrValidation         = errors.New("template validation failed")
	ErrUnresolvedVariable = errors.New("unresolved template variable")
	ErrTemplateNotFound   = errors.New("template not found")
	ErrTemplateInactive   = errors.New("template is not active")
	ErrNameTaken          = errors.New("template name already in use")
)
