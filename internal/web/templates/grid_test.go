package templates

import (
	"context"
	"strings"
	"testing"
)

func TestGridPage(t *testing.T) {
	var b strings.Builder
	err := GridPage(GridPageParams{
		ID:          "orders",
		Dataset:     `sales<"q1">`,
		APIBase:     "/api/grids/orders",
		ColumnsJSON: `[{"field":"amount"}]`,
	}).Render(context.Background(), &b)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	got := b.String()
	for _, want := range []string{
		`id="grid-orders"`,
		`data-grid-id="orders"`,
		`data-api="/api/grids/orders"`,
		`data-dataset="sales&lt;&#34;q1&#34;&gt;"`,
		`data-columns="[{&#34;field&#34;:&#34;amount&#34;}]"`,
		`<title>orders - sales&lt;&#34;q1&#34;&gt;</title>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("page missing %s:\n%s", want, got)
		}
	}
}
