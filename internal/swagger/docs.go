// Package Swagger go-blog-pages
//
// A small site that renders html pages and echoes submitted forms.
//
//   Schemes: http, https
//   Version: 1.0
//   Host: localhost:5000
//   BasePath:/
//
//   Consumes:
//   - application/json
//   - application/x-www-form-urlencoded
//   - multipart/form-data
//
//   Produces:
//   - application/json
//   - text/html
//
// swagger:meta
package swagger
