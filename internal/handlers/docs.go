// docs.go serves the OpenAPI description of the API and a Swagger UI page.
//
// Go Pattern: the YAML document is compiled into the binary with go:embed,
// so a deployed server always documents exactly the routes it was built with.
package handlers

import (
	"bytes"
	_ "embed"
	"html/template"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openAPIDoc []byte

// swaggerCDN pins the Swagger UI major version.
const swaggerCDN = "https://cdn.jsdelivr.net/npm/swagger-ui-dist@5"

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>AutoShorts API {{.Version}}</title>
<link rel="stylesheet" href="{{.CDN}}/swagger-ui.css">
<style>.swagger-ui .topbar { display: none; }</style>
</head>
<body>
<div id="docs"></div>
<script src="{{.CDN}}/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({ url: {{.DocURL}}, dom_id: '#docs', deepLinking: true, tryItOutEnabled: false });
</script>
</body>
</html>`))

// ServeOpenAPISpec returns the raw OpenAPI YAML document.
// GET /api/docs/openapi.yaml
func (h *Handler) ServeOpenAPISpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", openAPIDoc)
}

// ServeSwaggerUI renders the interactive docs page.
// GET /api/docs
func (h *Handler) ServeSwaggerUI(c *gin.Context) {
	var buf bytes.Buffer
	err := docsPage.Execute(&buf, struct {
		Version string
		CDN     string
		DocURL  string
	}{h.Version, swaggerCDN, "/api/docs/openapi.yaml"})
	if err != nil {
		log.Printf("❌ Failed to render docs page: %v", err)
		respondError(c, http.StatusInternalServerError, "docs_error", "Failed to render API docs")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
