package domain

import "time"

// NotificationType is the business category of a notification. It keys
// both templates and user preferences.
type NotificationType string

const (
	TypeWelcome     NotificationType = "welcome"
	TypeOrder       NotificationType = "order"
	TypePayment     NotificationType = "payment"
	TypeSystem      NotificationType = "system"
	TypePromotional NotificationType = "promotional"
)

// NotificationTypes lists all supported notification types.
var NotificationTypes = []NotificationType{
	TypeWelcome, TypeOrder, TypePayment, TypeSystem, TypePromotional,
}

// Valid reports whether the type is one of the supported values.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeWelcome, TypeOrder, TypePayment, TypeSystem, TypePromotional:
		return true
	}
	return false
}

// VariableType is the declared runtime type of a template variable.
type VariableType string

const (
	VariableString  VariableType = "string"
	VariableNumber  VariableType = "number"
	VariableBoolean VariableType = "boolean"
	VariableObject  VariableType = "object"
	VariableArray   VariableType = "array"
)

// Valid reports whether the variable type is one of the supported values.
func (v VariableType) Valid() bool {
	switch v {
	case VariableString, VariableNumber, VariableBoolean, VariableObject, VariableArray:
		return true
	}
	return false
}

// VariableSpec declares the contract for a single template variable.
type VariableSpec struct {
	Type     VariableType `json:"type"`
	Required bool         `json:"required"`
}

// Template is a reusable content pattern with named {{variable}}
// placeholders. Its name must follow the {type}_{channel}_{purpose}
// convention.
type Template struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Type      NotificationType        `json:"type"`
	Channel   Channel                 `json:"channel"`
	Subject   string                  `json:"subject,omitempty"`
	Content   string                  `json:"content"`
	Variables map[string]VariableSpec `json:"variables,omitempty"`
	IsActive  bool                    `json:"is_active"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}
