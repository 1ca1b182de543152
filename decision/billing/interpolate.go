package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	billerrors "github.com/the-solipsist/invoice-system/pkg/errors"
	"github.com/the-solipsist/invoice-system/pkg/money"
)

// Interpolate renders a row template against a set of named values.
// Placeholders use {name} syntax; "{{" and "}}" escape literal braces.
// An unknown placeholder is a data error naming the key and component.
func Interpolate(template string, vars map[string]string, componentID string) (string, error) {
	if template == "" {
		return "", nil
	}
	var b strings.Builder
	i := 0
	for i < len(template) {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", &billerrors.BillingError{
					Code:        billerrors.ErrCodeMalformedTemplate,
					Message:     fmt.Sprintf("unterminated placeholder in template %q", template),
					Severity:    billerrors.SeverityError,
					ComponentID: componentID,
				}
			}
			name := template[i+1 : i+end]
			val, ok := vars[name]
			if !ok {
				return "", billerrors.NewMissingVariableError(name, componentID)
			}
			b.WriteString(val)
			i += end + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// stringify renders a context or meta scalar for interpolation.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return money.FormatQuantity(val)
	case float64:
		return money.FormatQuantity(decimal.NewFromFloat(val))
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprint(val)
	}
}
