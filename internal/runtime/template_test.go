package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	vars := map[string]string{"name": "Alice", "order.id": "42"}

	assert.Equal(t, "Hello Alice", Render("Hello {name}", vars))
	assert.Equal(t, "Hello Alice", Render("Hello {{ name }}", vars))
	assert.Equal(t, "Order 42", Render("Order {{order.id}}", vars))
	assert.Equal(t, "Hi {unknown}", Render("Hi {unknown}", vars))
	assert.Equal(t, `{"a": 1}`, Render(`{"a": 1}`, vars))
	assert.Equal(t, "Hello {name}", Render("Hello {name}", nil))
}
