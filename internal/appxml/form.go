package appxml

import (
	"errors"
	"strings"

	"github.com/beevik/etree"
)

// ErrNotXForm indicates a document that lacks the html/head/model skeleton.
var ErrNotXForm = errors.New("not an xform document")

// Form is a parsed XForm definition.
type Form struct {
	Doc   *etree.Document
	Head  *etree.Element
	Model *etree.Element
	// Data is the root element of the primary instance. Nil when the primary
	// instance is empty.
	Data *etree.Element
}

// LoadForm parses an XForm.
func LoadForm(content []byte) (*Form, error) {
	doc, err := Parse(content)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	head := Child(root, "head")
	model := Child(head, "model")
	if root.Tag != "html" || model == nil {
		return nil, ErrNotXForm
	}
	f := &Form{Doc: doc, Head: head, Model: model}
	for _, inst := range Children(model, "instance") {
		if HasAttr(inst, "id") {
			continue
		}
		if kids := inst.ChildElements(); len(kids) > 0 {
			f.Data = kids[0]
		}
		break
	}
	return f, nil
}

// Title returns the h:title text.
func (f *Form) Title() string {
	return Text(Child(f.Head, "title"))
}

// XMLNS returns the namespace declared on the primary instance root.
func (f *Form) XMLNS() string {
	return Attr(f.Data, "xmlns")
}

// Binds returns the model's bind elements.
func (f *Form) Binds() []*etree.Element {
	return Children(f.Model, "bind")
}

// Bytes serializes the form.
func (f *Form) Bytes() ([]byte, error) {
	return Serialize(f.Doc)
}

// HasNode reports whether an absolute instance path such as /data/group/q1
// resolves to an element of the primary instance. ok is false when the
// nodeset is not a plain absolute path and cannot be judged.
func (f *Form) HasNode(nodeset string) (found, ok bool) {
	ns := strings.TrimSpace(nodeset)
	if !strings.HasPrefix(ns, "/") || strings.ContainsAny(ns, "[]()@*| ") {
		return false, false
	}
	if f.Data == nil {
		return false, true
	}
	segs := strings.Split(strings.Trim(ns, "/"), "/")
	if len(segs) == 0 || localName(segs[0]) != f.Data.Tag {
		return false, true
	}
	cur := f.Data
	for _, seg := range segs[1:] {
		if seg == "" {
			return false, false
		}
		cur = Child(cur, localName(seg))
		if cur == nil {
			return false, true
		}
	}
	return true, true
}

func localName(seg string) string {
	if i := strings.IndexByte(seg, ':'); i >= 0 {
		return seg[i+1:]
	}
	return seg
}

// CaseBlock summarizes one case transaction block inside a form.
type CaseBlock struct {
	Element *etree.Element

	Create     *etree.Element
	CreateType string
	Update     *etree.Element
	Close      bool
	Index      bool
}

// CaseBlocks returns the case transaction blocks in the primary instance.
func (f *Form) CaseBlocks() []CaseBlock {
	var blocks []CaseBlock
	for _, c := range Descendants(f.Data, "case") {
		b := CaseBlock{Element: c}
		b.Create = Child(c, "create")
		if b.Create != nil {
			b.CreateType = Text(Child(b.Create, "case_type"))
		}
		b.Update = Child(c, "update")
		b.Close = Child(c, "close") != nil
		b.Index = Child(c, "index") != nil
		blocks = append(blocks, b)
	}
	return blocks
}

// CreatedCaseType returns the first case type created by the form, or "".
func (f *Form) CreatedCaseType() string {
	for _, b := range f.CaseBlocks() {
		if b.CreateType != "" {
			return b.CreateType
		}
	}
	return ""
}

// UpdateProperties returns the property names written by an update block.
func (b CaseBlock) UpdateProperties() []string {
	if b.Update == nil {
		return nil
	}
	props := make([]string, 0, len(b.Update.ChildElements()))
	for _, p := range b.Update.ChildElements() {
		props = append(props, p.Tag)
	}
	return props
}
