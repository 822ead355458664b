package data

import (
	"encoding/json"
	"net/url"
)

// Form is a flattened form submission; when a field is submitted more
// than once, only the first value is kept
type Form map[string]string

func FormFromValues(values url.Values) Form {
	form := make(Form, len(values))
	for key, value := range values {
		if len(value) <= 0 {
			form[key] = ""
			continue
		}
		form[key] = value[0]
	}
	return form
}

func (f Form) ToValues() url.Values {
	values := make(url.Values, len(f))
	for key, value := range f {
		values.Set(key, value)
	}
	return values
}

func (f Form) MarshalBinary() ([]byte, error) {
	return json.Marshal(f)
}

func (f *Form) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, f)
}
