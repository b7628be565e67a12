// Package ccz reads and writes CommCare application archives (.ccz).
//
// An archive is a zip container of XML documents: profile.ccpr (the
// application manifest), suite.xml (navigation and resources), one XForm per
// form under modules-N/forms-M.xml, and translation tables such as
// default/app_strings.txt. Parse unpacks an archive into a FileSet and derives
// the application name and a markdown summary; Build writes a FileSet back
// with deterministic entry order so that parsing a built archive returns the
// original bytes.
package ccz
