package swagger

import "github.com/antonio-alexander/go-blog-pages/internal/data"

// swagger:route POST /form-handler Form SubmitForm
// Echoes the submitted form fields as a json object, the first
// value of a repeated field is used and the query string is ignored.
//
//     Consumes:
//     - application/x-www-form-urlencoded
//     - multipart/form-data
//
//     Produces:
//     - application/json
//
// responses:
//   200: FormPostResponseOk
//   400: FormPostResponseBadRequest

// swagger:response FormPostResponseOk
type FormPostResponseOk struct {
	// in:body
	Form data.Form `json:"form"`
}

// swagger:response FormPostResponseBadRequest
type FormPostResponseBadRequest struct {
	// in:body
	Error data.Error `json:"error"`
}

// swagger:parameters SubmitForm
type FormPostParams struct {
	// in:formData
	Fields map[string]string `json:"fields"`

	// in:header
	CorrelationId string `json:"Correlation-Id"`
}
