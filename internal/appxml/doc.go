// Package appxml reads and edits the XML documents inside a CommCare
// application package: XForm form definitions, the suite navigation file and
// the profile manifest.
//
// Documents are handled as etree trees so that untouched regions survive a
// parse/serialize cycle. Lookups match on local element names and ignore
// namespace prefixes, because generated and hand-edited forms disagree about
// which prefixes they bind (h:head vs head).
package appxml
