package templates

import (
	"testing"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderConfirmationTemplate() *domain.Template {
	return &domain.Template{
		ID:      "tpl-1",
		Name:    "order_email_confirmation",
		Type:    domain.TypeOrder,
		Channel: domain.ChannelEmail,
		Subject: "Order {{order_id}} confirmed",
		Content: "Hi {{customer_name}}, your order {{order_id}} for {{total}} is confirmed.",
		Variables: map[string]domain.VariableSpec{
			"order_id":      {Type: domain.VariableString, Required: true},
			"customer_name": {Type: domain.VariableString, Required: true},
			"total":         {Type: domain.VariableNumber, Required: true},
		},
		IsActive: true,
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, Validate(orderConfirmationTemplate()))
}

func TestValidate_NameConvention(t *testing.T) {
	tests := []struct {
		name         string
		templateName string
		wantErr      bool
	}{
		{"matching prefix", "order_email_confirmation", false},
		{"wrong type prefix", "payment_email_confirmation", true},
		{"wrong channel prefix", "order_sms_confirmation", true},
		{"missing purpose", "order_email_", true},
		{"uppercase", "Order_Email_Confirmation", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := orderConfirmationTemplate()
			tpl.Name = tt.templateName

			err := Validate(tpl)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_EmailRequiresSubject(t *testing.T) {
	tpl := orderConfirmationTemplate()
	tpl.Subject = "  "

	err := Validate(tpl)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidate_SMSWithoutSubject(t *testing.T) {
	tpl := orderConfirmationTemplate()
	tpl.Name = "order_sms_confirmation"
	tpl.Channel = domain.ChannelSMS
	tpl.Subject = ""

	assert.NoError(t, Validate(tpl))
}

func TestValidate_UnknownVariableType(t *testing.T) {
	tpl := orderConfirmationTemplate()
	tpl.Variables["order_id"] = domain.VariableSpec{Type: "integer", Required: true}

	err := Validate(tpl)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidate_MalformedDelimiters(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"well formed", "Hello {{customer_name}}", false},
		{"spaces inside", "Hello {{ customer_name }}", false},
		{"unclosed", "Hello {{customer_name", true},
		{"stray closing", "Hello customer_name}}", true},
		{"unclosed after valid", "{{order_id}} and {{oops", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := orderConfirmationTemplate()
			tpl.Content = tt.content

			err := Validate(tpl)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRender_OrderConfirmation(t *testing.T) {
	rendered, err := Render(orderConfirmationTemplate(), map[string]any{
		"order_id":      "ORD-1042",
		"customer_name": "Dana",
		"total":         49.9,
	})
	require.NoError(t, err)

	assert.Equal(t, "Order ORD-1042 confirmed", rendered.Subject)
	assert.Equal(t, "Hi Dana, your order ORD-1042 for 49.9 is confirmed.", rendered.Content)
}

func TestRender_MissingRequiredVariable(t *testing.T) {
	_, err := Render(orderConfirmationTemplate(), map[string]any{
		"order_id": "ORD-1042",
		"total":    49.9,
	})

	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "customer_name")
}

func TestRender_TypeMismatch(t *testing.T) {
	_, err := Render(orderConfirmationTemplate(), map[string]any{
		"order_id":      "ORD-1042",
		"customer_name": "Dana",
		"total":         "49.90", // declared number
	})

	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "total")
}

func TestRender_MissingOptionalLeavesPlaceholderUnresolved(t *testing.T) {
	tpl := orderConfirmationTemplate()
	tpl.Variables["coupon"] = domain.VariableSpec{Type: domain.VariableString, Required: false}
	tpl.Content = "Order {{order_id}} with coupon {{coupon}}"

	_, err := Render(tpl, map[string]any{
		"order_id":      "ORD-1042",
		"customer_name": "Dana",
		"total":         49.9,
	})

	assert.ErrorIs(t, err, ErrUnresolvedVariable)
}

func TestRender_UndeclaredPlaceholder(t *testing.T) {
	tpl := orderConfirmationTemplate()
	tpl.Content = "Order {{order_id}} shipped to {{address}}"

	_, err := Render(tpl, map[string]any{
		"order_id":      "ORD-1042",
		"customer_name": "Dana",
		"total":         49.9,
		"address":       "12 Main St", // not declared, must not substitute
	})

	require.ErrorIs(t, err, ErrUnresolvedVariable)
	assert.Contains(t, err.Error(), "address")
}

func TestRender_ValueFormatting(t *testing.T) {
	tpl := &domain.Template{
		Name:    "system_in_app_digest",
		Type:    domain.TypeSystem,
		Channel: domain.ChannelInApp,
		Content: "count={{count}} ok={{ok}} tags={{tags}} meta={{meta}}",
		Variables: map[string]domain.VariableSpec{
			"count": {Type: domain.VariableNumber, Required: true},
			"ok":    {Type: domain.VariableBoolean, Required: true},
			"tags":  {Type: domain.VariableArray, Required: true},
			"meta":  {Type: domain.VariableObject, Required: true},
		},
	}

	rendered, err := Render(tpl, map[string]any{
		"count": 3,
		"ok":    true,
		"tags":  []string{"a", "b"},
		"meta":  map[string]any{"k": "v"},
	})
	require.NoError(t, err)

	assert.Equal(t, `count=3 ok=true tags=["a","b"] meta={"k":"v"}`, rendered.Content)
}

func TestRender_RepeatedPlaceholder(t *testing.T) {
	tpl := orderConfirmationTemplate()
	tpl.Content = "{{order_id}} / {{order_id}}"

	rendered, err := Render(tpl, map[string]any{
		"order_id":      "ORD-1",
		"customer_name": "Dana",
		"total":         1,
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1 / ORD-1", rendered.Content)
}

func TestRender_DoesNotMutateInputs(t *testing.T) {
	tpl := orderConfirmationTemplate()
	vars := map[string]any{
		"order_id":      "ORD-1",
		"customer_name": "Dana",
		"total":         1,
	}

	_, err := Render(tpl, vars)
	require.NoError(t, err)

	assert.Equal(t, "Order {{order_id}} confirmed", tpl.Subject)
	assert.Len(t, vars, 3)
}
