package autofix

import (
	"strings"
	"testing"

	"github.com/kcowger/commcare-forge-sub001/internal/appxml"
	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/ccz/ccztest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixer_CleanPackageUnchanged(t *testing.T) {
	in := ccztest.Files()
	res := New().Apply(in)

	assert.Empty(t, res.Fixes)
	assert.NotNil(t, res.Fixes)
	assert.True(t, in.Equal(res.Files), "clean package must round-trip byte for byte")
}

func TestFixer_DanglingFormResource(t *testing.T) {
	in := ccztest.WithDanglingFormResource()
	before := in.Clone()

	res := New().Apply(in)

	require.Len(t, res.Fixes, 1)
	fix := res.Fixes[0]
	assert.Equal(t, "suite-dangling-form-resource", fix.Detector)
	assert.Equal(t, []string{ccz.SuitePath}, fix.Paths)
	assert.Contains(t, fix.Description, "modules-0/forms-2.xml")

	suite, err := appxml.LoadSuite(res.Files[ccz.SuitePath])
	require.NoError(t, err)
	assert.Len(t, suite.FormResources(), 2)
	assert.NotContains(t, string(res.Files[ccz.SuitePath]), "forms-2.xml")

	assert.True(t, before.Equal(in), "input FileSet must not be modified")
}

func TestFixer_DanglingEntryAndMenuCommand(t *testing.T) {
	in := ccztest.Replace(t, ccztest.Files(), ccz.SuitePath, ccztest.VisitXMLNS, "http://openrosa.org/formdesigner/gone")

	res := New().Apply(in)

	require.Len(t, res.Fixes, 2)
	assert.Equal(t, "suite-dangling-entry", res.Fixes[0].Detector)
	assert.Equal(t, "suite-dangling-menu-command", res.Fixes[1].Detector)
	assert.Contains(t, res.Fixes[1].Description, `"m0-f1"`)

	suite, err := appxml.LoadSuite(res.Files[ccz.SuitePath])
	require.NoError(t, err)
	assert.Len(t, suite.Entries(), 1)
	assert.Len(t, appxml.Children(suite.Menus()[0], "command"), 1)
}

func TestFixer_DanglingEntrySkippedWhenFormUnreadable(t *testing.T) {
	in := ccztest.Replace(t, ccztest.Files(), ccz.SuitePath, ccztest.VisitXMLNS, "http://openrosa.org/formdesigner/gone")
	in["modules-1/forms-0.xml"] = []byte("<h:html")

	res := New().Apply(in)
	for _, f := range res.Fixes {
		assert.NotEqual(t, "suite-dangling-entry", f.Detector)
	}
}

func TestFixer_MissingDataAttributes(t *testing.T) {
	in := ccztest.Replace(t, ccztest.Files(), "modules-0/forms-0.xml",
		`<data xmlns="http://openrosa.org/formdesigner/reg-household" uiVersion="1" version="3" name="Register Household">`,
		`<data>`)

	res := New().Apply(in)

	require.NotEmpty(t, res.Fixes)
	assert.Equal(t, "form-missing-data-attributes", res.Fixes[0].Detector)
	assert.Contains(t, res.Fixes[0].Description, "xmlns, uiVersion, version, name")

	f, err := appxml.LoadForm(res.Files["modules-0/forms-0.xml"])
	require.NoError(t, err)
	assert.Equal(t, ccztest.RegistrationXMLNS, f.XMLNS(), "xmlns restored from the matching suite entry")
	assert.Equal(t, "1", appxml.Attr(f.Data, "uiVersion"))
	assert.Equal(t, "Register Household", appxml.Attr(f.Data, "name"))
	assert.Len(t, res.Fixes, 1, "restored xmlns keeps the entry alive")
}

func TestFixer_MissingXMLNSWithoutEntryIsGenerated(t *testing.T) {
	in := ccztest.Files()
	in["modules-1/forms-0.xml"] = []byte(strings.Replace(ccztest.VisitForm,
		`xmlns="http://openrosa.org/formdesigner/visit-household" `, "", 1))

	res := New().Apply(in)

	require.Len(t, res.Fixes, 1)
	assert.Equal(t, []string{"modules-1/forms-0.xml"}, res.Fixes[0].Paths)
	f, err := appxml.LoadForm(res.Files["modules-1/forms-0.xml"])
	require.NoError(t, err)
	assert.Equal(t, GeneratedXMLNS("modules-1/forms-0.xml"), f.XMLNS())
}

func TestFixer_DanglingBind(t *testing.T) {
	in := ccztest.Replace(t, ccztest.Files(), "modules-0/forms-1.xml",
		`<bind nodeset="/data/members" type="xsd:int"/>`,
		`<bind nodeset="/data/members" type="xsd:int"/><bind nodeset="/data/ghost" type="xsd:string"/><bind nodeset="/data/members[1]" relevant="true()"/>`)

	res := New().Apply(in)

	require.Len(t, res.Fixes, 1)
	assert.Equal(t, "form-dangling-bind", res.Fixes[0].Detector)
	assert.Equal(t, []string{"modules-0/forms-1.xml"}, res.Fixes[0].Paths)

	f, err := appxml.LoadForm(res.Files["modules-0/forms-1.xml"])
	require.NoError(t, err)
	assert.Len(t, f.Binds(), 2, "unjudgeable nodesets are kept")
}

func TestFixer_CaseTypeCasing(t *testing.T) {
	in := ccztest.Replace(t, ccztest.Files(), "modules-0/forms-0.xml",
		"<case_type>household</case_type>", "<case_type>HouseHold</case_type>")
	in = ccztest.Replace(t, in, ccz.SuitePath, "@case_type='household'", "@case_type='Household'")

	res := New().Apply(in)

	require.Len(t, res.Fixes, 2)
	assert.Equal(t, []string{"modules-0/forms-0.xml"}, res.Fixes[0].Paths)
	assert.Equal(t, []string{ccz.SuitePath}, res.Fixes[1].Paths)
	assert.Contains(t, string(res.Files["modules-0/forms-0.xml"]), "<case_type>household</case_type>")
	assert.Contains(t, string(res.Files[ccz.SuitePath]), "@case_type='household'")
}

func TestFixer_MissingLocaleStrings(t *testing.T) {
	in := ccztest.Files()
	in[ccz.AppStringsPath] = []byte("modules.m0=Households")

	res := New().Apply(in)

	require.Len(t, res.Fixes, 1)
	assert.Equal(t, "missing-locale-strings", res.Fixes[0].Detector)
	assert.Equal(t, "modules.m0=Households\nforms.m0f0=Form 1\nforms.m0f1=Form 2\n", string(res.Files[ccz.AppStringsPath]))
}

func TestFixer_NoAppStringsLeftAlone(t *testing.T) {
	in := ccztest.Files()
	delete(in, ccz.AppStringsPath)

	res := New().Apply(in)
	assert.Empty(t, res.Fixes)
	assert.False(t, res.Files.Has(ccz.AppStringsPath))
}

func TestFixer_Idempotent(t *testing.T) {
	broken := func(t *testing.T) ccz.FileSet {
		fs := ccztest.WithDanglingFormResource()
		fs = ccztest.Replace(t, fs, ccz.SuitePath, ccztest.VisitXMLNS, "http://openrosa.org/formdesigner/gone")
		fs = ccztest.Replace(t, fs, ccz.SuitePath, `<menu id="m0">`, `<menu id="m0"><command id="m9-f9"/>`)
		fs = ccztest.Replace(t, fs, "modules-0/forms-0.xml", `uiVersion="1" version="3" `, "")
		fs = ccztest.Replace(t, fs, "modules-0/forms-0.xml", "<case_type>household</case_type>", "<case_type>Household</case_type>")
		fs = ccztest.Replace(t, fs, "modules-0/forms-1.xml", `<bind nodeset="/data/members" type="xsd:int"/>`, `<bind nodeset="/data/nope"/>`)
		fs[ccz.AppStringsPath] = []byte("")
		return fs
	}

	cases := map[string]ccz.FileSet{
		"clean":         ccztest.Files(),
		"dangling":      ccztest.WithDanglingFormResource(),
		"kitchen sink":  broken(t),
		"garbage forms": {ccz.SuitePath: []byte("<suite"), "modules-0/forms-0.xml": []byte("not xml"), ccz.ProfilePath: nil},
		"empty":         {},
	}
	for name, id := range map[string]string{"padded locale id": " forms.m0f9 ", "comment locale id": "#note", "locale id with equals": "a=b"} {
		cases[name] = ccztest.Replace(t, ccztest.Files(), ccz.SuitePath, `<locale id="modules.m0"/>`, `<locale id="`+id+`"/>`)
	}
	fixer := New()
	for name, fs := range cases {
		t.Run(name, func(t *testing.T) {
			first := fixer.Apply(fs)
			second := fixer.Apply(first.Files)
			assert.Empty(t, second.Fixes, "second pass applied fixes: %v", second.Fixes)
			assert.True(t, first.Files.Equal(second.Files))
		})
	}
}

func TestFixer_KitchenSinkFixCount(t *testing.T) {
	fs := ccztest.WithDanglingFormResource()
	fs = ccztest.Replace(t, fs, "modules-0/forms-0.xml", "<case_type>household</case_type>", "<case_type>Household</case_type>")

	res := New().Apply(fs)

	var detectors []string
	for _, f := range res.Fixes {
		detectors = append(detectors, f.Detector)
	}
	assert.Equal(t, []string{"suite-dangling-form-resource", "case-type-casing"}, detectors)
}

type panickingDetector struct{}

func (panickingDetector) Name() string            { return "panics" }
func (panickingDetector) Apply(ccz.FileSet) []Fix { panic("boom") }

func TestFixer_RecoversDetectorPanic(t *testing.T) {
	fixer := New(panickingDetector{}, danglingFormResources{})
	assert.Equal(t, []string{"panics", "suite-dangling-form-resource"}, fixer.Detectors())

	res := fixer.Apply(ccztest.WithDanglingFormResource())
	require.Len(t, res.Fixes, 1)
	assert.Equal(t, "suite-dangling-form-resource", res.Fixes[0].Detector)
}

func TestFixer_UnrepresentableLocaleIDsLeftAlone(t *testing.T) {
	fs := ccztest.Replace(t, ccztest.Files(), ccz.SuitePath, `<locale id="modules.m0"/>`, `<locale id="#note"/>`)

	res := New(missingLocaleStrings{}).Apply(fs)
	assert.Empty(t, res.Fixes)
	assert.Equal(t, string(fs[ccz.AppStringsPath]), string(res.Files[ccz.AppStringsPath]))
}

type editThenPanic struct{}

func (editThenPanic) Name() string { return "edit-then-panic" }
func (editThenPanic) Apply(files ccz.FileSet) []Fix {
	files[ccz.SuitePath] = []byte("half written")
	delete(files, ccz.AppStringsPath)
	panic("boom")
}

func TestFixer_PanickingDetectorEditsDiscarded(t *testing.T) {
	fs := ccztest.Files()

	res := New(editThenPanic{}).Apply(fs)
	assert.Empty(t, res.Fixes)
	assert.True(t, fs.Equal(res.Files), "edits made before the panic leaked into the result")
}

func TestHumanizeLocaleID(t *testing.T) {
	assert.Equal(t, "Form 3", humanizeLocaleID("forms.m0f2"))
	assert.Equal(t, "Module 2", humanizeLocaleID("modules.m1"))
	assert.Equal(t, "Case list title", humanizeLocaleID("m0.case_list_title"))
	assert.Equal(t, "Plain", humanizeLocaleID("plain"))
	assert.True(t, strings.HasPrefix(GeneratedXMLNS("a"), XMLNSPrefix))
}
