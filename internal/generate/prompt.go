package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
)

// maxFeedback caps how many previous errors are sent back to the model.
const maxFeedback = 30

const systemPrompt = `You build CommCare applications. Produce the complete contents of a CommCare .ccz archive.

The archive must contain:
- profile.ccpr: a <profile> root whose name attribute is the application name
- suite.xml: one <xform> resource per form, <entry> elements referencing each form by xmlns, <menu> elements grouping entries into modules, and a <locale> resource for default/app_strings.txt
- modules-N/forms-M.xml: XForms (XHTML with an <h:title> and a primary instance whose root carries xmlns, uiVersion="1", version="1" and name)
- default/app_strings.txt: key=value lines for every <locale id> referenced in suite.xml, including modules.mN and forms.mNfM

Case rules:
- case types are lower case, start with a letter and contain only letters, digits, "_" or "-"
- a <create> block declares case_type, case_name and owner_id
- case properties in <update> never use reserved names such as case_id, type, status or owner_id

Respond ONLY with a JSON object, no additional text:
{"app_name": "<application name>", "files": {"<archive path>": "<file content>", ...}}

Archive paths are relative and use forward slashes.`

// UserPrompt renders the user message for req, including the previous
// attempt's errors when there are any.
func UserPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Build this application:\n\n")
	b.WriteString(strings.TrimSpace(req.Prompt))
	b.WriteString("\n")

	if len(req.Feedback) == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "\nThis is attempt %d of %d. The previous package failed validation:\n", req.Attempt, req.MaxAttempts)
	feedback := req.Feedback
	if len(feedback) > maxFeedback {
		feedback = feedback[:maxFeedback]
	}
	for _, msg := range feedback {
		fmt.Fprintf(&b, "- %s\n", msg)
	}
	if omitted := len(req.Feedback) - len(feedback); omitted > 0 {
		fmt.Fprintf(&b, "- ... and %d more\n", omitted)
	}
	b.WriteString("\nReturn the complete corrected package, not only the changed files.\n")
	return b.String()
}

type reply struct {
	AppName string            `json:"app_name"`
	Files   map[string]string `json:"files"`
}

// parseReply extracts the JSON object from the model text. Code fences and
// surrounding prose are ignored.
func parseReply(text string) (*Candidate, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidOutput)
	}

	var r reply
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if len(r.Files) == 0 {
		return nil, fmt.Errorf("%w: reply has no files", ErrInvalidOutput)
	}

	entries := make(map[string][]byte, len(r.Files))
	for p, content := range r.Files {
		entries[p] = []byte(content)
	}
	files, err := ccz.NewFileSet(entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	name := strings.TrimSpace(r.AppName)
	if name == "" {
		name = ccz.AppName(files)
	}
	return &Candidate{Files: files, AppName: name}, nil
}
