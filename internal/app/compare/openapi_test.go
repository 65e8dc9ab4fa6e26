package compare

import (
	"strings"
	"testing"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersV1 = `
openapi: "3.0.0"
info:
  title: orders
  version: "1.0.0"
components:
  securitySchemes:
    apiKey:
      type: apiKey
      in: header
      name: X-API-Key
  schemas:
    Order:
      type: object
      required: [id, status]
      properties:
        id:
          type: integer
        status:
          type: string
          enum: [open, paid, cancelled]
        note:
          type: string
paths:
  /orders/{id}:
    get:
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: integer
        - name: expand
          in: query
          schema:
            type: string
      responses:
        "200":
          description: ok
          headers:
            X-Rate-Limit:
              schema:
                type: integer
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/Order"
    delete:
      responses:
        "204":
          description: deleted
  /orders:
    post:
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [customerId]
              properties:
                customerId:
                  type: integer
                currency:
                  type: string
      responses:
        "201":
          description: created
          content:
            application/json:
              schema:
                type: object
                properties:
                  id:
                    type: integer
                  reference:
                    type: string
`

func loadOpenAPI(t *testing.T, doc string) *contract.Contract {
	t.Helper()
	c, err := contract.Load([]byte(doc))
	require.NoError(t, err)
	return c
}

func TestCompareOpenAPI(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(string) string
		opts  Options
		want  []Kind
		paths []string
	}{
		{
			name: "identical",
			edit: func(s string) string { return s },
		},
		{
			name: "renamed path parameter still matches",
			edit: func(s string) string {
				return strings.Replace(s, "/orders/{id}:", "/orders/{orderId}:", 1)
			},
		},
		{
			name: "method removed",
			edit: func(s string) string {
				return strings.Replace(s, `    delete:
      responses:
        "204":
          description: deleted
`, "", 1)
			},
			want:  []Kind{MethodRemoved},
			paths: []string{"DELETE /orders/{id}"},
		},
		{
			name: "status code changed",
			edit: func(s string) string {
				return strings.Replace(s, `"201":`, `"200":`, 1)
			},
			want:  []Kind{StatusChanged},
			paths: []string{"POST /orders.response.status"},
		},
		{
			name: "component property removed",
			edit: func(s string) string {
				return strings.Replace(s, `        note:
          type: string
`, "", 1)
			},
			want:  []Kind{PropertyRemoved},
			paths: []string{"components.schemas.Order.note"},
		},
		{
			name: "optional property removal ignored",
			edit: func(s string) string {
				return strings.Replace(s, `        note:
          type: string
`, "", 1)
			},
			opts: Options{IgnoreOptionalFields: true},
		},
		{
			name: "enum value removed",
			edit: func(s string) string {
				return strings.Replace(s, "enum: [open, paid, cancelled]", "enum: [open, paid]", 1)
			},
			want:  []Kind{EnumValueRemoved},
			paths: []string{"components.schemas.Order.status"},
		},
		{
			name: "component property type changed",
			edit: func(s string) string {
				return strings.Replace(s, `        id:
          type: integer
        status:`, `        id:
          type: string
        status:`, 1)
			},
			want:  []Kind{TypeChanged},
			paths: []string{"components.schemas.Order.id"},
		},
		{
			name: "query parameter became required",
			edit: func(s string) string {
				return strings.Replace(s, `        - name: expand
          in: query
`, `        - name: expand
          in: query
          required: true
`, 1)
			},
			want:  []Kind{RequestFieldAdded},
			paths: []string{"GET /orders/{id}.request.parameters.query.expand"},
		},
		{
			name: "request property became required",
			edit: func(s string) string {
				return strings.Replace(s, "required: [customerId]", "required: [customerId, currency]", 1)
			},
			want:  []Kind{RequestFieldAdded},
			paths: []string{"POST /orders.request.body.currency"},
		},
		{
			name: "response property removed",
			edit: func(s string) string {
				return strings.Replace(s, `                  reference:
                    type: string
`, "", 1)
			},
			want:  []Kind{ResponseFieldRemoved},
			paths: []string{"POST /orders.response.201.body.reference"},
		},
		{
			name: "response header removed",
			edit: func(s string) string {
				return strings.Replace(s, `          headers:
            X-Rate-Limit:
              schema:
                type: integer
`, "", 1)
			},
			opts:  Options{CheckResponseHeaders: true},
			want:  []Kind{ResponseHeaderRemoved},
			paths: []string{"GET /orders/{id}.response.200.headers.x-rate-limit"},
		},
		{
			name: "security added",
			edit: func(s string) string {
				return strings.Replace(s, "    delete:\n", "    delete:\n      security:\n        - apiKey: []\n", 1)
			},
			opts:  Options{ValidateSecurity: true},
			want:  []Kind{SecurityAdded},
			paths: []string{"DELETE /orders/{id}.security.apiKey"},
		},
		{
			name: "endpoint added",
			edit: func(s string) string {
				return s + `  /customers:
    get:
      responses:
        "200":
          description: ok
`
			},
			want:  []Kind{EndpointAdded},
			paths: []string{"GET /customers"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			diffs, err := Compare(loadOpenAPI(t, ordersV1), loadOpenAPI(t, tt.edit(ordersV1)), tt.opts)
			require.NoError(t, err)

			assert.Equal(t, tt.want, kinds(diffs))
			for n, p := range tt.paths {
				assert.Equal(t, p, diffs[n].Path)
			}
		})
	}
}

func TestCompareOpenAPIEndpointRemoved(t *testing.T) {
	old := loadOpenAPI(t, ordersV1)
	new := loadOpenAPI(t, strings.Replace(ordersV1, "  /orders:\n    post:", "  /baskets:\n    post:", 1))

	diffs, err := Compare(old, new, Options{})
	require.NoError(t, err)

	require.Len(t, diffs, 2)
	assert.Equal(t, EndpointRemoved, diffs[0].Kind)
	assert.Equal(t, "POST /orders", diffs[0].Endpoint)
	assert.Equal(t, EndpointAdded, diffs[1].Kind)
	assert.Equal(t, "POST /baskets", diffs[1].Endpoint)
}
