package autofix

import (
	"fmt"

	"github.com/kcowger/commcare-forge-sub001/internal/appxml"
	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
)

// editSuite loads suite.xml, lets fn edit it and stores the result when fn
// reports fixes.
func editSuite(files ccz.FileSet, fn func(*appxml.Suite) []Fix) []Fix {
	content, ok := files[ccz.SuitePath]
	if !ok {
		return nil
	}
	suite, err := appxml.LoadSuite(content)
	if err != nil {
		return nil
	}
	fixes := fn(suite)
	if len(fixes) == 0 {
		return nil
	}
	out, err := suite.Bytes()
	if err != nil {
		return nil
	}
	files[ccz.SuitePath] = out
	return fixes
}

// danglingFormResources drops xform resources whose local file is missing.
type danglingFormResources struct{}

func (danglingFormResources) Name() string { return "suite-dangling-form-resource" }

func (d danglingFormResources) Apply(files ccz.FileSet) []Fix {
	return editSuite(files, func(s *appxml.Suite) []Fix {
		var fixes []Fix
		for _, xf := range appxml.Children(s.Root, "xform") {
			for _, res := range appxml.Children(xf, "resource") {
				p := appxml.ResourcePath(res)
				if p == "" || files.Has(p) {
					continue
				}
				xf.RemoveChild(res)
				fixes = append(fixes, Fix{
					Detector:    d.Name(),
					Description: fmt.Sprintf("removed form resource %q pointing at missing file %s", appxml.Attr(res, "id"), p),
					Paths:       []string{ccz.SuitePath},
				})
			}
			if len(xf.ChildElements()) == 0 {
				s.Root.RemoveChild(xf)
			}
		}
		return fixes
	})
}

// danglingEntries drops entries that launch a form namespace no form declares.
// It does nothing when any form cannot be parsed, since the declared
// namespaces are then unknown.
type danglingEntries struct{}

func (danglingEntries) Name() string { return "suite-dangling-entry" }

func (d danglingEntries) Apply(files ccz.FileSet) []Fix {
	declared := make(map[string]bool)
	for _, p := range files.FormPaths() {
		f, err := appxml.LoadForm(files[p])
		if err != nil {
			return nil
		}
		if ns := f.XMLNS(); ns != "" {
			declared[ns] = true
		}
	}
	return editSuite(files, func(s *appxml.Suite) []Fix {
		var fixes []Fix
		for _, e := range s.Entries() {
			ns := appxml.EntryXMLNS(e)
			if ns == "" || declared[ns] {
				continue
			}
			s.Root.RemoveChild(e)
			fixes = append(fixes, Fix{
				Detector:    d.Name(),
				Description: fmt.Sprintf("removed entry %q for unknown form %s", appxml.EntryCommandID(e), ns),
				Paths:       []string{ccz.SuitePath},
			})
		}
		return fixes
	})
}

// danglingMenuCommands drops menu commands that match no entry or menu.
type danglingMenuCommands struct{}

func (danglingMenuCommands) Name() string { return "suite-dangling-menu-command" }

func (d danglingMenuCommands) Apply(files ccz.FileSet) []Fix {
	return editSuite(files, func(s *appxml.Suite) []Fix {
		known := make(map[string]bool)
		for _, e := range s.Entries() {
			if id := appxml.EntryCommandID(e); id != "" {
				known[id] = true
			}
		}
		for _, m := range s.Menus() {
			if id := appxml.Attr(m, "id"); id != "" {
				known[id] = true
			}
		}

		var fixes []Fix
		for _, m := range s.Menus() {
			for _, c := range appxml.Children(m, "command") {
				id := appxml.Attr(c, "id")
				if known[id] {
					continue
				}
				m.RemoveChild(c)
				fixes = append(fixes, Fix{
					Detector:    d.Name(),
					Description: fmt.Sprintf("removed command %q from menu %q: no matching entry", id, appxml.Attr(m, "id")),
					Paths:       []string{ccz.SuitePath},
				})
			}
		}
		return fixes
	})
}
