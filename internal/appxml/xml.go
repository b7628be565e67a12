package appxml

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// ErrNoRoot indicates a document without a root element.
var ErrNoRoot = errors.New("document has no root element")

// Parse reads an XML document.
func Parse(content []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, ErrNoRoot
	}
	return doc, nil
}

// Serialize writes doc back to bytes without reindenting.
func Serialize(doc *etree.Document) ([]byte, error) {
	return doc.WriteToBytes()
}

// Child returns the first direct child of el with the given local name.
func Child(el *etree.Element, name string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if c.Tag == name {
			return c
		}
	}
	return nil
}

// Children returns all direct children of el with the given local name.
func Children(el *etree.Element, name string) []*etree.Element {
	if el == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == name {
			out = append(out, c)
		}
	}
	return out
}

// Descendants returns every element below el (excluding el) with the given
// local name, in document order.
func Descendants(el *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	Walk(el, func(e *etree.Element) bool {
		if e != el && e.Tag == name {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Walk visits el and its descendants depth-first. Returning false from fn
// skips the subtree of the current element.
func Walk(el *etree.Element, fn func(*etree.Element) bool) {
	if el == nil {
		return
	}
	if !fn(el) {
		return
	}
	for _, c := range el.ChildElements() {
		Walk(c, fn)
	}
}

// Attr returns the value of the unprefixed attribute key, or "".
func Attr(el *etree.Element, key string) string {
	if el == nil {
		return ""
	}
	for _, a := range el.Attr {
		if a.Space == "" && a.Key == key {
			return a.Value
		}
	}
	return ""
}

// HasAttr reports whether el carries the unprefixed attribute key.
func HasAttr(el *etree.Element, key string) bool {
	if el == nil {
		return false
	}
	for _, a := range el.Attr {
		if a.Space == "" && a.Key == key {
			return true
		}
	}
	return false
}

// Text returns the trimmed character data of el.
func Text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// LocalPath converts a suite resource location into a package path.
func LocalPath(location string) string {
	p := strings.TrimSpace(location)
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	return strings.TrimPrefix(p, "/")
}

var formPathPattern = regexp.MustCompile(`^modules-(\d+)/forms-(\d+)\.xml$`)

// FormIndex parses a form definition path of the form modules-N/forms-M.xml.
func FormIndex(path string) (module, form int, ok bool) {
	m := formPathPattern.FindStringSubmatch(path)
	if m == nil {
		return 0, 0, false
	}
	module, _ = strconv.Atoi(m[1])
	form, _ = strconv.Atoi(m[2])
	return module, form, true
}

// IsFormPath reports whether path names a form definition.
func IsFormPath(path string) bool {
	_, _, ok := FormIndex(path)
	return ok
}

// FormPath builds the package path for module m, form f.
func FormPath(m, f int) string {
	return fmt.Sprintf("modules-%d/forms-%d.xml", m, f)
}

// SortFormPaths orders form paths by module then form number.
func SortFormPaths(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		mi, fi, _ := FormIndex(paths[i])
		mj, fj, _ := FormIndex(paths[j])
		if mi != mj {
			return mi < mj
		}
		return fi < fj
	})
}
