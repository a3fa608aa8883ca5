// Package metadata collects the user's attributes and assembles the record
// that describes a captured asset.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Errors returned by the Assembler.
var (
	ErrMissingField    = errors.New("missing required field")
	ErrIndexOutOfRange = errors.New("attribute index out of range")
)

// Attribute is one free-form trait of the asset.
type Attribute struct {
	Name  string `json:"trait_type"`
	Value string `json:"value"`
}

// Record is the metadata document published next to the image.
type Record struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       string      `json:"price"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
	CreatedAt   time.Time   `json:"created_at"`
}

// WithImage returns a copy of r whose image reference is uri.
func (r Record) WithImage(uri string) Record {
	out := r
	out.Attributes = append([]Attribute(nil), r.Attributes...)
	if out.Attributes == nil {
		out.Attributes = []Attribute{}
	}
	out.Image = uri
	return out
}

// Marshal renders the compact document that is published.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// JSON renders the indented document offered for download.
func (r Record) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Assembler keeps the ordered attribute list of the current form. It is not
// safe for concurrent use.
type Assembler struct {
	attributes []Attribute
	now        func() time.Time
}

// NewAssembler returns an Assembler with an empty attribute list.
func NewAssembler() *Assembler {
	return &Assembler{now: time.Now}
}

// AddAttribute appends a trimmed name/value pair.
func (a *Assembler) AddAttribute(name, value string) error {
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" {
		return fmt.Errorf("%w: attribute name", ErrMissingField)
	}
	if value == "" {
		return fmt.Errorf("%w: attribute value", ErrMissingField)
	}
	a.attributes = append(a.attributes, Attribute{Name: name, Value: value})
	return nil
}

// RemoveAttribute deletes the attribute at index; later entries shift down.
func (a *Assembler) RemoveAttribute(index int) error {
	if index < 0 || index >= len(a.attributes) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(a.attributes))
	}
	a.attributes = append(a.attributes[:index], a.attributes[index+1:]...)
	return nil
}

// Attributes returns a copy of the current list.
func (a *Assembler) Attributes() []Attribute {
	out := make([]Attribute, len(a.attributes))
	copy(out, a.attributes)
	return out
}

// Len is the number of attributes.
func (a *Assembler) Len() int { return len(a.attributes) }

// Reset clears the attribute list.
func (a *Assembler) Reset() {
	a.attributes = nil
}

// Assemble builds a Record from the form fields, the current attributes and
// a local image reference.
func (a *Assembler) Assemble(title, description, price, image string) (Record, error) {
	fields := []struct {
		name  string
		value *string
	}{
		{"title", &title},
		{"description", &description},
		{"price", &price},
	}
	for _, f := range fields {
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			return Record{}, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	if image == "" {
		return Record{}, fmt.Errorf("%w: image", ErrMissingField)
	}

	return Record{
		Name:        title,
		Description: description,
		Price:       price,
		Image:       image,
		Attributes:  a.Attributes(),
		CreatedAt:   a.now().UTC(),
	}, nil
}
