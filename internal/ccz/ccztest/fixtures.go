// Package ccztest provides application package fixtures for tests.
package ccztest

import (
	"strings"
	"testing"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
)

// XMLNS values of the fixture forms.
const (
	RegistrationXMLNS = "http://openrosa.org/formdesigner/reg-household"
	VisitXMLNS        = "http://openrosa.org/formdesigner/visit-household"
)

// Profile is a minimal profile.ccpr naming the app "Household Survey".
const Profile = `<?xml version='1.0' encoding='UTF-8'?>
<profile xmlns="http://cihi.commcarehq.org/jad" version="3" uniqueid="5e1a8c0f" name="Household Survey" update="https://www.commcarehq.org/a/demo/apps/download/5e1a8c0f/profile.ccpr">
  <property key="CommCare App Name" value="Household Survey"/>
  <suite>
    <resource id="suite" version="3">
      <location authority="local">./suite.xml</location>
    </resource>
  </suite>
</profile>
`

// Suite wires two forms of module 0. The second form follows up on a
// household case.
const Suite = `<?xml version='1.0' encoding='UTF-8'?>
<suite version="3">
  <xform>
    <resource id="m0f0" version="3">
      <location authority="local">./modules-0/forms-0.xml</location>
      <location authority="remote">./modules-0/forms-0.xml</location>
    </resource>
  </xform>
  <xform>
    <resource id="m0f1" version="3">
      <location authority="local">./modules-0/forms-1.xml</location>
      <location authority="remote">./modules-0/forms-1.xml</location>
    </resource>
  </xform>
  <locale language="default">
    <resource id="app_default_strings" version="3">
      <location authority="local">./default/app_strings.txt</location>
    </resource>
  </locale>
  <entry>
    <form>http://openrosa.org/formdesigner/reg-household</form>
    <command id="m0-f0">
      <text><locale id="forms.m0f0"/></text>
    </command>
  </entry>
  <entry>
    <form>http://openrosa.org/formdesigner/visit-household</form>
    <command id="m0-f1">
      <text><locale id="forms.m0f1"/></text>
    </command>
    <session>
      <datum id="case_id" nodeset="instance('casedb')/casedb/case[@case_type='household'][@status='open']" value="./@case_id" detail-select="m0_case_short"/>
    </session>
  </entry>
  <menu id="m0">
    <text><locale id="modules.m0"/></text>
    <command id="m0-f0"/>
    <command id="m0-f1"/>
  </menu>
</suite>
`

// RegistrationForm creates a household case.
const RegistrationForm = `<?xml version="1.0" encoding="UTF-8"?>
<h:html xmlns:h="http://www.w3.org/1999/xhtml" xmlns="http://www.w3.org/2002/xforms" xmlns:jr="http://openrosa.org/javarosa" xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <h:head>
    <h:title>Register Household</h:title>
    <model>
      <instance>
        <data xmlns="http://openrosa.org/formdesigner/reg-household" uiVersion="1" version="3" name="Register Household">
          <household_name/>
          <village/>
          <case xmlns="http://commcarehq.org/case/transaction/v2" case_id="" date_modified="" user_id="">
            <create>
              <case_name/>
              <owner_id/>
              <case_type>household</case_type>
            </create>
            <update>
              <village/>
            </update>
          </case>
        </data>
      </instance>
      <bind nodeset="/data/household_name" type="xsd:string" required="true()"/>
      <bind nodeset="/data/village" type="xsd:string"/>
      <bind nodeset="/data/case/create/case_name" calculate="/data/household_name"/>
    </model>
  </h:head>
  <h:body>
    <input ref="/data/household_name"><label>Household name</label></input>
    <input ref="/data/village"><label>Village</label></input>
  </h:body>
</h:html>
`

// VisitForm updates the household case selected in the session.
const VisitForm = `<?xml version="1.0" encoding="UTF-8"?>
<h:html xmlns:h="http://www.w3.org/1999/xhtml" xmlns="http://www.w3.org/2002/xforms" xmlns:jr="http://openrosa.org/javarosa" xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <h:head>
    <h:title>Visit Household</h:title>
    <model>
      <instance>
        <data xmlns="http://openrosa.org/formdesigner/visit-household" uiVersion="1" version="3" name="Visit Household">
          <members/>
          <case xmlns="http://commcarehq.org/case/transaction/v2" case_id="" date_modified="" user_id="">
            <update>
              <member_count/>
            </update>
          </case>
        </data>
      </instance>
      <bind nodeset="/data/members" type="xsd:int"/>
    </model>
  </h:head>
  <h:body>
    <input ref="/data/members"><label>Members</label></input>
  </h:body>
</h:html>
`

// AppStrings holds the default translations.
const AppStrings = `modules.m0=Households
forms.m0f0=Register Household
forms.m0f1=Visit Household
`

// Files returns a valid two-form application.
func Files() ccz.FileSet {
	return ccz.FileSet{
		ccz.ProfilePath:         []byte(Profile),
		ccz.SuitePath:           []byte(Suite),
		"modules-0/forms-0.xml": []byte(RegistrationForm),
		"modules-0/forms-1.xml": []byte(VisitForm),
		ccz.AppStringsPath:      []byte(AppStrings),
	}
}

// DanglingResource is an xform resource whose file is not in the package.
const DanglingResource = `<xform>
    <resource id="m0f2" version="3">
      <location authority="local">./modules-0/forms-2.xml</location>
      <location authority="remote">./modules-0/forms-2.xml</location>
    </resource>
  </xform>
  <locale language="default">`

// WithDanglingFormResource returns Files with a suite resource pointing at a
// form that does not exist.
func WithDanglingFormResource() ccz.FileSet {
	fs := Files()
	fs[ccz.SuitePath] = []byte(strings.Replace(Suite, `<locale language="default">`, DanglingResource, 1))
	return fs
}

// Replace returns a copy of fs with old replaced by new in the entry at path.
// It fails the test when old does not occur.
func Replace(tb testing.TB, fs ccz.FileSet, path, old, new string) ccz.FileSet {
	tb.Helper()
	content := string(fs[path])
	if !strings.Contains(content, old) {
		tb.Fatalf("fixture %s does not contain %q", path, old)
	}
	out := fs.Clone()
	out[path] = []byte(strings.Replace(content, old, new, 1))
	return out
}

// WriteArchive builds fs into dir and returns the archive path.
func WriteArchive(tb testing.TB, fs ccz.FileSet, dir, baseName string) string {
	tb.Helper()
	path, err := ccz.Build(fs, dir, baseName)
	if err != nil {
		tb.Fatalf("build fixture archive: %v", err)
	}
	return path
}
