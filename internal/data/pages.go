package data

import "encoding/json"

const (
	IndexName   string = "JackFlex"
	IndexGender string = "Female"
)

type IndexPage struct {
	Name   string
	Gender string
}

func NewIndexPage() *IndexPage {
	return &IndexPage{
		Name:   IndexName,
		Gender: IndexGender,
	}
}

type EmployeePage struct {
	Id string
}

type ContactPage struct{}

// Page is a rendered template, it's what gets cached
type Page struct {
	Name string `json:"name"`
	Html []byte `json:"html"`
}

func (p *Page) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

func (p *Page) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}

func (p *Page) Copy() *Page {
	page := &Page{Name: p.Name}
	if p.Html != nil {
		page.Html = make([]byte, len(p.Html))
		copy(page.Html, p.Html)
	}
	return page
}
