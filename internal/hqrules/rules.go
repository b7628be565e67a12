// Package hqrules checks an application package against the constraints the
// CommCare HQ importer enforces and the external toolchain does not: form
// namespaces, case block completeness, identifier naming and case type
// consistency between forms that create and forms that update cases.
package hqrules

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/kcowger/commcare-forge-sub001/internal/appxml"
	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/validation"
)

// Rule identifiers.
const (
	RuleNoForms            = "no-forms"
	RuleFormUnreadable     = "form-unreadable"
	RuleXMLNSMissing       = "form-xmlns-missing"
	RuleXMLNSDuplicate     = "form-xmlns-duplicate"
	RuleSuiteUnreadable    = "suite-unreadable"
	RuleEntryUnknownForm   = "suite-entry-unknown-form"
	RuleCreateIncomplete   = "case-create-incomplete"
	RuleCaseTypeName       = "case-type-name"
	RuleCasePropertyName   = "case-property-name"
	RuleModuleCaseTypes    = "module-multiple-case-types"
	RuleCaseTypeNotCreated = "case-type-never-created"
	RuleUpdateWithoutType  = "case-update-without-type"
)

var (
	caseTypePattern     = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,254}$`)
	propertyNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,254}$`)
)

// reservedProperties are case fields HQ manages itself.
var reservedProperties = map[string]bool{
	"actions": true, "case_id": true, "case_type": true, "closed": true,
	"closed_by": true, "closed_on": true, "commtrack": true, "computed_": true,
	"computed_modified_on_": true, "date": true, "date-opened": true,
	"date_modified": true, "doc_type": true, "domain": true, "external-id": true,
	"index": true, "indices": true, "initial_processing_complete": true,
	"last_modified": true, "modified_by": true, "modified_on": true,
	"opened_by": true, "opened_on": true, "parent": true, "referrals": true,
	"server_modified_on": true, "server_opened_on": true, "status": true,
	"type": true, "user_id": true, "userid": true, "version": true,
	"xform_id": true, "xform_ids": true,
}

// Issue is one rule violation.
type Issue struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Validator is the in-process HQ rule checker. It never skips.
type Validator struct{}

// New returns a rule validator.
func New() *Validator { return &Validator{} }

func (*Validator) Name() string  { return "rules" }
func (*Validator) CanSkip() bool { return false }

// Validate checks in.Files.
func (v *Validator) Validate(_ context.Context, in validation.Input) validation.Outcome {
	issues := Check(in.Files)
	if len(issues) == 0 {
		return validation.Success(fmt.Sprintf("%d form(s) passed HQ rules", len(in.Files.FormPaths())))
	}
	errs := make([]string, len(issues))
	for i, is := range issues {
		errs[i] = is.String()
	}
	return validation.Failure(errs...)
}

type formInfo struct {
	path    string
	module  int
	form    *appxml.Form
	creates []string
	updates bool
}

// Check returns every violation, ordered by path then rule. Package-level issues, which
// carry no path, come first.
func Check(files ccz.FileSet) []Issue {
	var issues []Issue
	report := func(path, rule, format string, args ...any) {
		issues = append(issues, Issue{Path: path, Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	paths := files.FormPaths()
	if len(paths) == 0 {
		report("", RuleNoForms, "application has no forms")
	}

	var forms []formInfo
	byXMLNS := make(map[string]string)
	for _, p := range paths {
		f, err := appxml.LoadForm(files[p])
		if err != nil {
			report(p, RuleFormUnreadable, "form is not a valid XForm: %v", err)
			continue
		}
		m, _, _ := appxml.FormIndex(p)
		info := formInfo{path: p, module: m, form: f}

		ns := f.XMLNS()
		switch {
		case ns == "":
			report(p, RuleXMLNSMissing, "form data element has no xmlns")
		case byXMLNS[ns] != "":
			report(p, RuleXMLNSDuplicate, "xmlns %s is already used by %s", ns, byXMLNS[ns])
		default:
			byXMLNS[ns] = p
		}

		for _, b := range f.CaseBlocks() {
			if b.Create != nil {
				checkCreate(p, b, report)
				if b.CreateType != "" {
					info.creates = append(info.creates, b.CreateType)
				}
			}
			if b.Update != nil || b.Close || b.Index {
				if b.Create == nil {
					info.updates = true
				}
			}
			for _, prop := range b.UpdateProperties() {
				checkProperty(p, prop, report)
			}
		}
		forms = append(forms, info)
	}

	entryTypes := checkSuite(files, byXMLNS, report)
	checkCaseTypes(forms, entryTypes, report)

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		return issues[i].Rule < issues[j].Rule
	})
	return issues
}

func checkCreate(path string, b appxml.CaseBlock, report func(string, string, string, ...any)) {
	var missing []string
	if b.CreateType == "" {
		missing = append(missing, "case_type")
	}
	for _, field := range []string{"case_name", "owner_id"} {
		if appxml.Child(b.Create, field) == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		report(path, RuleCreateIncomplete, "case create block is missing %s", strings.Join(missing, ", "))
	}
	if b.CreateType != "" && !caseTypePattern.MatchString(b.CreateType) {
		report(path, RuleCaseTypeName, "case type %q must be lower case letters, digits, '_' or '-', starting with a letter", b.CreateType)
	}
}

func checkProperty(path, prop string, report func(string, string, string, ...any)) {
	switch {
	case reservedProperties[strings.ToLower(prop)]:
		report(path, RuleCasePropertyName, "case property %q is reserved", prop)
	case !propertyNamePattern.MatchString(prop):
		report(path, RuleCasePropertyName, "case property %q must start with a letter and contain only letters, digits, '_' or '-'", prop)
	}
}

// checkSuite verifies entries against declared forms and returns the case type
// each form's entry selects, keyed by xmlns.
func checkSuite(files ccz.FileSet, declared map[string]string, report func(string, string, string, ...any)) map[string]string {
	types := make(map[string]string)
	content, ok := files[ccz.SuitePath]
	if !ok {
		return types
	}
	suite, err := appxml.LoadSuite(content)
	if err != nil {
		report(ccz.SuitePath, RuleSuiteUnreadable, "suite is not valid XML: %v", err)
		return types
	}
	for _, e := range suite.Entries() {
		ns := appxml.EntryXMLNS(e)
		if ns == "" {
			continue
		}
		if declared[ns] == "" {
			report(ccz.SuitePath, RuleEntryUnknownForm, "entry %q launches form %s which is not in the package", appxml.EntryCommandID(e), ns)
			continue
		}
		if ct := appxml.EntryCaseType(e); ct != "" {
			types[ns] = ct
		}
	}
	return types
}

func checkCaseTypes(forms []formInfo, entryTypes map[string]string, report func(string, string, string, ...any)) {
	created := make(map[string]bool)
	moduleCreates := make(map[int][]string)
	for _, f := range forms {
		for _, ct := range f.creates {
			created[ct] = true
			if !slices.Contains(moduleCreates[f.module], ct) {
				moduleCreates[f.module] = append(moduleCreates[f.module], ct)
			}
		}
	}

	reported := make(map[int]bool)
	for _, f := range forms {
		if types := moduleCreates[f.module]; len(types) > 1 && !reported[f.module] {
			reported[f.module] = true
			report(f.path, RuleModuleCaseTypes, "module %d creates more than one case type: %s", f.module+1, strings.Join(types, ", "))
		}
		if !f.updates {
			continue
		}
		ct := entryTypes[f.form.XMLNS()]
		if ct == "" && len(moduleCreates[f.module]) == 1 {
			ct = moduleCreates[f.module][0]
		}
		switch {
		case ct == "":
			report(f.path, RuleUpdateWithoutType, "form updates a case but its module has no case type")
		case !created[ct]:
			report(f.path, RuleCaseTypeNotCreated, "case type %q is updated but no form creates it", ct)
		}
	}
}
