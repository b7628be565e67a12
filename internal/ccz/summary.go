package ccz

import (
	"fmt"
	"strings"

	"github.com/kcowger/commcare-forge-sub001/internal/appxml"
)

// DefaultAppName is used when neither the profile nor the translations name
// the application.
const DefaultAppName = "Untitled Application"

// Structure is the module and form layout of a package.
type Structure struct {
	Modules []Module
}

// Module is one navigation module.
type Module struct {
	Index    int
	Name     string
	CaseType string
	Forms    []Form
}

// Form is one form definition inside a module.
type Form struct {
	Index int
	Path  string
	Name  string
	XMLNS string
}

// FormCount returns the number of forms across modules.
func (s Structure) FormCount() int {
	n := 0
	for _, m := range s.Modules {
		n += len(m.Forms)
	}
	return n
}

// AppName derives the application name from the profile manifest, falling
// back to the app.display.name translation.
func AppName(files FileSet) string {
	if name := strings.TrimSpace(appxml.ProfileName(files[ProfilePath])); name != "" {
		return name
	}
	if name := strings.TrimSpace(appxml.ParseAppStrings(files[AppStringsPath])["app.display.name"]); name != "" {
		return name
	}
	return DefaultAppName
}

// Describe derives the module and form layout. Unreadable forms still count,
// named by their position.
func Describe(files FileSet) Structure {
	strs := appxml.ParseAppStrings(files[AppStringsPath])
	entryTypes := suiteCaseTypes(files)

	var s Structure
	byIndex := make(map[int]int)
	for _, p := range files.FormPaths() {
		mi, fi, _ := appxml.FormIndex(p)
		pos, ok := byIndex[mi]
		if !ok {
			name := strings.TrimSpace(strs[fmt.Sprintf("modules.m%d", mi)])
			if name == "" {
				name = fmt.Sprintf("Module %d", mi+1)
			}
			s.Modules = append(s.Modules, Module{Index: mi, Name: name})
			pos = len(s.Modules) - 1
			byIndex[mi] = pos
		}
		mod := &s.Modules[pos]

		form := Form{Index: fi, Path: p}
		if f, err := appxml.LoadForm(files[p]); err == nil {
			form.Name = f.Title()
			form.XMLNS = f.XMLNS()
			if mod.CaseType == "" {
				mod.CaseType = f.CreatedCaseType()
			}
			if mod.CaseType == "" {
				mod.CaseType = entryTypes[form.XMLNS]
			}
		}
		if form.Name == "" {
			form.Name = strings.TrimSpace(strs[fmt.Sprintf("forms.m%df%d", mi, fi)])
		}
		if form.Name == "" {
			form.Name = fmt.Sprintf("Form %d", fi+1)
		}
		mod.Forms = append(mod.Forms, form)
	}
	return s
}

// suiteCaseTypes maps form xmlns to the case type its suite entry selects.
func suiteCaseTypes(files FileSet) map[string]string {
	out := make(map[string]string)
	suite, err := appxml.LoadSuite(files[SuitePath])
	if err != nil {
		return out
	}
	for _, e := range suite.Entries() {
		if ct := appxml.EntryCaseType(e); ct != "" {
			out[appxml.EntryXMLNS(e)] = ct
		}
	}
	return out
}

// Markdown renders the structure for display.
func (s Structure) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s, %s**\n", plural(len(s.Modules), "module"), plural(s.FormCount(), "form"))
	for _, m := range s.Modules {
		fmt.Fprintf(&b, "\n### Module %d: %s\n", m.Index+1, m.Name)
		if m.CaseType != "" {
			fmt.Fprintf(&b, "Case type: `%s`\n", m.CaseType)
		}
		b.WriteString("\n")
		for _, f := range m.Forms {
			fmt.Fprintf(&b, "- %s\n", f.Name)
		}
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
