package swagger

// swagger:route GET / Pages ReadIndex
// Renders the index page.
//
//     Produces:
//     - text/html
//
// responses:
//   200: PageGetResponseOk
//   500: ErrorResponse

// swagger:route GET /contact Pages ReadContact
// Renders the contact page, its form posts to /form-handler.
//
//     Produces:
//     - text/html
//
// responses:
//   200: PageGetResponseOk
//   500: ErrorResponse

// swagger:route GET /employee/{id} Pages ReadEmployee
// Renders the employee page with the id as given, the id isn't
// validated and may be empty.
//
//     Produces:
//     - text/html
//
// responses:
//   200: PageGetResponseOk
//   500: ErrorResponse

// swagger:response PageGetResponseOk
type PageGetResponseOk struct {
	// in:body
	Html string
}

// swagger:response ErrorResponse
type ErrorResponse struct {
	// in:body
	Error string
}

// swagger:parameters ReadIndex ReadContact
type PageGetParams struct {
	// in:header
	CorrelationId string `json:"Correlation-Id"`
}

// swagger:parameters ReadEmployee
type EmployeeGetParams struct {
	// in:path
	Id string `json:"id"`

	// in:header
	CorrelationId string `json:"Correlation-Id"`
}
