package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/try-flowforge/backend/pkg/template"
)

func testData() map[string]any {
	return map[string]any{
		"price": 150.5,
		"blocks": map[string]any{
			"oracle-1": map[string]any{
				"price":  2450.75,
				"symbol": "ETH",
				"quotes": []any{
					map[string]any{"venue": "uniswap", "amount": 10.0},
				},
			},
		},
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	data := testData()

	value, ok := template.Resolve(data, "price")
	assert.True(t, ok)
	assert.InDelta(t, 150.5, value, 0.0001)

	value, ok = template.Resolve(data, "blocks.oracle-1.symbol")
	assert.True(t, ok)
	assert.Equal(t, "ETH", value)

	value, ok = template.Resolve(data, "blocks.oracle-1.quotes.0.venue")
	assert.True(t, ok)
	assert.Equal(t, "uniswap", value)

	value, ok = template.Resolve(data, "$.blocks.oracle-1.quotes[0].amount")
	assert.True(t, ok)
	assert.InDelta(t, 10.0, value, 0.0001)

	_, ok = template.Resolve(data, "blocks.missing.price")
	assert.False(t, ok)

	_, ok = template.Resolve(data, "blocks.oracle-1.quotes.3.venue")
	assert.False(t, ok)

	_, ok = template.Resolve(data, "")
	assert.False(t, ok)
}

func TestResolve_NumericKeys(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"blocks": map[string]any{
			"2": map[string]any{"price": 10.0, "tags": []any{"a", "b"}},
		},
		"headers": map[string]string{"Content-Type": "application/json"},
	}

	value, ok := template.Resolve(data, "blocks.2.price")
	assert.True(t, ok)
	assert.InDelta(t, 10.0, value, 0.0001)

	value, ok = template.Resolve(data, "blocks.2.tags.1")
	assert.True(t, ok)
	assert.Equal(t, "b", value)

	value, ok = template.Resolve(data, "headers.Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "application/json", value)

	assert.Equal(t, "price 10", template.Render("price {{blocks.2.price}}", data))
}

func TestRender_KeepsTypeForWholePlaceholder(t *testing.T) {
	t.Parallel()

	rendered := template.Render("{{blocks.oracle-1.price}}", testData())
	assert.InDelta(t, 2450.75, rendered, 0.0001)
}

func TestRender_EmbeddedPlaceholders(t *testing.T) {
	t.Parallel()

	rendered := template.Render("{{ blocks.oracle-1.symbol }} is at {{blocks.oracle-1.price}} ({{blocks.nope.x}})", testData())
	assert.Equal(t, "ETH is at 2450.75 ({{blocks.nope.x}})", rendered)
}

func TestRenderConfig_Nested(t *testing.T) {
	t.Parallel()

	config := map[string]any{
		"message": "price {{price}}",
		"retries": 3,
		"nested": map[string]any{
			"list": []any{"{{blocks.oracle-1.symbol}}", true},
		},
	}

	rendered := template.RenderConfig(config, testData())

	assert.Equal(t, "price 150.5", rendered["message"])
	assert.Equal(t, 3, rendered["retries"])
	assert.Equal(t, []any{"ETH", true}, rendered["nested"].(map[string]any)["list"])
	assert.Equal(t, "price {{price}}", config["message"], "input config must not be mutated")

	assert.Equal(t, map[string]any{}, template.RenderConfig(nil, testData()))
}

func TestStringify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", template.Stringify(nil))
	assert.Equal(t, "3", template.Stringify(3.0))
	assert.Equal(t, `{"a":1}`, template.Stringify(map[string]any{"a": 1}))
	assert.True(t, template.NeedsRendering("x {{a}}"))
	assert.False(t, template.NeedsRendering("plain"))
}
