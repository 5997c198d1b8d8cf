// fastview implements a builder pattern for simple server-side views:
// given an input data format, apply a transformation to a view-model,
// and then multiplex that data to one or more views.
package fastview

import (
	"html/template"
)

// EleUpdate is an element identifier and a set of operations to apply to its attributes/content.
type EleUpdate struct {
	// The id by which to find the element
	EleId string
	// Op keys are attrib keys or 'textContent', values are the strings to which these are set.
	// Example: ('x','123') means 'set attribute 'x' to 123. 'textContent' is a reserved key:
	// ('textContent','abc') means 'set ele.textContent to abc'.
	Ops []Op
}

// TEXT_CONTENT is the reserved op key that sets the element's textContent.
const TEXT_CONTENT = "textContent"

// Op is a key and value. For example an html attribute and its new value.
type Op struct {
	Key   string
	Value string
}

// Text returns an update setting the element's textContent.
func Text(eleId, value string) EleUpdate {
	return EleUpdate{
		EleId: eleId,
		Ops:   []Op{{Key: TEXT_CONTENT, Value: value}},
	}
}

// ViewComponent implements server side views: Parse to add their initial form
// to a page template and Updates to obtain the chan by which ele-updates are notified.
type ViewComponent interface {
	Updates() <-chan []EleUpdate
	// Parse parses the view-component and adds it to the passed parent template, thus inheriting
	// or possibly extending its definition (func-map, etc). It returns the template name.
	Parse(*template.Template) (string, error)
}
