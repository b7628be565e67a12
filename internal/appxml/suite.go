package appxml

import (
	"regexp"

	"github.com/beevik/etree"
)

// Suite is the parsed navigation and resource manifest (suite.xml).
type Suite struct {
	Doc  *etree.Document
	Root *etree.Element
}

// LoadSuite parses suite.xml.
func LoadSuite(content []byte) (*Suite, error) {
	doc, err := Parse(content)
	if err != nil {
		return nil, err
	}
	return &Suite{Doc: doc, Root: doc.Root()}, nil
}

// Bytes serializes the suite.
func (s *Suite) Bytes() ([]byte, error) {
	return Serialize(s.Doc)
}

// FormResources returns the resource elements of every xform block.
func (s *Suite) FormResources() []*etree.Element {
	var out []*etree.Element
	for _, x := range Children(s.Root, "xform") {
		out = append(out, Children(x, "resource")...)
	}
	return out
}

// ResourcePath returns the package path of a resource's local location, or
// "" when the resource has no local location.
func ResourcePath(resource *etree.Element) string {
	for _, loc := range Children(resource, "location") {
		if Attr(loc, "authority") == "local" {
			return LocalPath(Text(loc))
		}
	}
	return ""
}

// Entries returns the suite's entry elements.
func (s *Suite) Entries() []*etree.Element {
	return Children(s.Root, "entry")
}

// EntryXMLNS returns the form namespace an entry launches.
func EntryXMLNS(entry *etree.Element) string {
	return Text(Child(entry, "form"))
}

// EntryCommandID returns the id of an entry's command.
func EntryCommandID(entry *etree.Element) string {
	return Attr(Child(entry, "command"), "id")
}

var caseTypePredicate = regexp.MustCompile(`@case_type\s*=\s*'([^']*)'`)

// EntryCaseType returns the case type selected by the entry's session datums,
// or "".
func EntryCaseType(entry *etree.Element) string {
	for _, d := range Descendants(Child(entry, "session"), "datum") {
		if m := caseTypePredicate.FindStringSubmatch(Attr(d, "nodeset")); m != nil {
			return m[1]
		}
	}
	return ""
}

// Menus returns the suite's menu elements.
func (s *Suite) Menus() []*etree.Element {
	return Children(s.Root, "menu")
}

// LocaleRefs returns the distinct locale ids referenced anywhere in the suite,
// in document order.
func (s *Suite) LocaleRefs() []string {
	seen := make(map[string]bool)
	var ids []string
	Walk(s.Root, func(e *etree.Element) bool {
		if e.Tag == "locale" {
			if id := Attr(e, "id"); id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		return true
	})
	return ids
}

// CaseTypePredicates returns the attribute values in the suite that contain a
// @case_type predicate.
func (s *Suite) CaseTypePredicates() []*etree.Attr {
	var out []*etree.Attr
	Walk(s.Root, func(e *etree.Element) bool {
		for i := range e.Attr {
			if caseTypePredicate.MatchString(e.Attr[i].Value) {
				out = append(out, &e.Attr[i])
			}
		}
		return true
	})
	return out
}

// ReplaceCaseTypes rewrites every @case_type predicate in value with fn.
func ReplaceCaseTypes(value string, fn func(string) string) string {
	return caseTypePredicate.ReplaceAllStringFunc(value, func(m string) string {
		sub := caseTypePredicate.FindStringSubmatch(m)
		return m[:len(m)-len(sub[1])-1] + fn(sub[1]) + "'"
	})
}

// ProfileName returns the name attribute of a profile.ccpr document.
func ProfileName(content []byte) string {
	doc, err := Parse(content)
	if err != nil {
		return ""
	}
	return Attr(doc.Root(), "name")
}
