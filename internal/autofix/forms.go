package autofix

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kcowger/commcare-forge-sub001/internal/appxml"
	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
)

// XMLNSPrefix is the namespace base assigned to forms without one.
const XMLNSPrefix = "http://openrosa.org/formdesigner/"

// editForms runs fn over every parseable form and stores edited forms.
func editForms(files ccz.FileSet, fn func(path string, f *appxml.Form) []Fix) []Fix {
	var fixes []Fix
	for _, p := range files.FormPaths() {
		f, err := appxml.LoadForm(files[p])
		if err != nil {
			continue
		}
		ff := fn(p, f)
		if len(ff) == 0 {
			continue
		}
		out, err := f.Bytes()
		if err != nil {
			continue
		}
		files[p] = out
		fixes = append(fixes, ff...)
	}
	return fixes
}

// formDataAttributes adds the attributes HQ requires on the primary instance
// root: xmlns, uiVersion, version and name. A missing xmlns is restored from
// the suite entry whose command id (mM-fF) matches the form path, otherwise
// derived from the path.
type formDataAttributes struct{}

func (formDataAttributes) Name() string { return "form-missing-data-attributes" }

func (d formDataAttributes) Apply(files ccz.FileSet) []Fix {
	launched := make(map[string]string)
	if suite, err := appxml.LoadSuite(files[ccz.SuitePath]); err == nil {
		for _, e := range suite.Entries() {
			launched[appxml.EntryCommandID(e)] = appxml.EntryXMLNS(e)
		}
	}
	declared := make(map[string]bool)
	for _, p := range files.FormPaths() {
		if f, err := appxml.LoadForm(files[p]); err == nil && f.XMLNS() != "" {
			declared[f.XMLNS()] = true
		}
	}

	return editForms(files, func(p string, f *appxml.Form) []Fix {
		if f.Data == nil {
			return nil
		}
		var added []string
		set := func(key, value string) {
			if appxml.Attr(f.Data, key) != "" {
				return
			}
			f.Data.CreateAttr(key, value)
			added = append(added, key)
		}
		m, fi, _ := appxml.FormIndex(p)
		xmlns := launched[fmt.Sprintf("m%d-f%d", m, fi)]
		if xmlns == "" || declared[xmlns] {
			xmlns = GeneratedXMLNS(p)
		}
		if appxml.Attr(f.Data, "xmlns") == "" {
			declared[xmlns] = true
		}
		set("xmlns", xmlns)
		set("uiVersion", "1")
		set("version", "1")
		name := f.Title()
		if name == "" {
			name = strings.TrimSuffix(p[strings.LastIndex(p, "/")+1:], ".xml")
		}
		set("name", name)

		if len(added) == 0 {
			return nil
		}
		return []Fix{{
			Detector:    d.Name(),
			Description: fmt.Sprintf("added missing %s to form data element", strings.Join(added, ", ")),
			Paths:       []string{p},
		}}
	})
}

// GeneratedXMLNS derives a stable form namespace from the form path.
func GeneratedXMLNS(path string) string {
	sum := sha256.Sum256([]byte(path))
	return XMLNSPrefix + strings.ToUpper(hex.EncodeToString(sum[:16]))
}

// danglingBinds drops binds whose absolute nodeset names no instance node.
type danglingBinds struct{}

func (danglingBinds) Name() string { return "form-dangling-bind" }

func (d danglingBinds) Apply(files ccz.FileSet) []Fix {
	return editForms(files, func(p string, f *appxml.Form) []Fix {
		var fixes []Fix
		for _, b := range f.Binds() {
			ns := appxml.Attr(b, "nodeset")
			found, ok := f.HasNode(ns)
			if !ok || found {
				continue
			}
			f.Model.RemoveChild(b)
			fixes = append(fixes, Fix{
				Detector:    d.Name(),
				Description: fmt.Sprintf("removed bind for missing node %s", ns),
				Paths:       []string{p},
			})
		}
		return fixes
	})
}

// caseTypeCasing lower-cases case types in form create blocks and in suite
// @case_type predicates so that create and update references agree.
type caseTypeCasing struct{}

func (caseTypeCasing) Name() string { return "case-type-casing" }

func (d caseTypeCasing) Apply(files ccz.FileSet) []Fix {
	fixes := editForms(files, func(p string, f *appxml.Form) []Fix {
		var fixes []Fix
		for _, b := range f.CaseBlocks() {
			if b.Create == nil {
				continue
			}
			el := appxml.Child(b.Create, "case_type")
			ct := appxml.Text(el)
			if ct == "" || ct == strings.ToLower(ct) {
				continue
			}
			el.SetText(strings.ToLower(ct))
			fixes = append(fixes, Fix{
				Detector:    d.Name(),
				Description: fmt.Sprintf("normalized case type %q to %q", ct, strings.ToLower(ct)),
				Paths:       []string{p},
			})
		}
		return fixes
	})

	suiteFixes := editSuite(files, func(s *appxml.Suite) []Fix {
		var changed []string
		for _, a := range s.CaseTypePredicates() {
			lowered := appxml.ReplaceCaseTypes(a.Value, strings.ToLower)
			if lowered == a.Value {
				continue
			}
			changed = append(changed, a.Value)
			a.Value = lowered
		}
		if len(changed) == 0 {
			return nil
		}
		return []Fix{{
			Detector:    d.Name(),
			Description: fmt.Sprintf("normalized case type casing in %d suite reference(s)", len(changed)),
			Paths:       []string{ccz.SuitePath},
		}}
	})
	return append(fixes, suiteFixes...)
}

// missingLocaleStrings appends default translations for locale ids the suite
// references but default/app_strings.txt lacks. A package without the table
// is left alone, as are ids the table format cannot hold.
type missingLocaleStrings struct{}

func (missingLocaleStrings) Name() string { return "missing-locale-strings" }

func (d missingLocaleStrings) Apply(files ccz.FileSet) []Fix {
	content, ok := files[ccz.AppStringsPath]
	if !ok {
		return nil
	}
	suite, err := appxml.LoadSuite(files[ccz.SuitePath])
	if err != nil {
		return nil
	}
	strs := appxml.ParseAppStrings(content)

	var missing []string
	values := make(map[string]string)
	for _, id := range suite.LocaleRefs() {
		if !appxml.IsAppStringsKey(id) {
			continue
		}
		if _, ok := strs[id]; ok {
			continue
		}
		missing = append(missing, id)
		values[id] = humanizeLocaleID(id)
	}
	if len(missing) == 0 {
		return nil
	}
	files[ccz.AppStringsPath] = appxml.AppendAppStrings(content, missing, values)
	return []Fix{{
		Detector:    d.Name(),
		Description: fmt.Sprintf("added %d missing translation(s): %s", len(missing), strings.Join(missing, ", ")),
		Paths:       []string{ccz.AppStringsPath},
	}}
}

func humanizeLocaleID(id string) string {
	var m, f int
	if n, _ := fmt.Sscanf(id, "forms.m%df%d", &m, &f); n == 2 && id == fmt.Sprintf("forms.m%df%d", m, f) {
		return fmt.Sprintf("Form %d", f+1)
	}
	if n, _ := fmt.Sscanf(id, "modules.m%d", &m); n == 1 && id == fmt.Sprintf("modules.m%d", m) {
		return fmt.Sprintf("Module %d", m+1)
	}
	last := id[strings.LastIndex(id, ".")+1:]
	last = strings.NewReplacer("_", " ", "-", " ").Replace(last)
	if last == "" {
		return id
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
