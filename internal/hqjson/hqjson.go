// Package hqjson derives the CommCare HQ application JSON document from an
// application package. HQ can import this document directly, which keeps the
// form sources and module layout without the compiled suite.
package hqjson

import (
	"encoding/json"
	"fmt"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
)

// DocType is the HQ document type of an application.
const DocType = "Application"

// Document is the HQ application document.
type Document struct {
	DocType string   `json:"doc_type"`
	Name    string   `json:"name"`
	Modules []Module `json:"modules"`
}

// Module is one HQ module.
type Module struct {
	Name     string `json:"name"`
	CaseType string `json:"case_type"`
	Forms    []Form `json:"forms"`
}

// Form is one HQ form with its XForm source.
type Form struct {
	Name   string `json:"name"`
	XMLNS  string `json:"xmlns"`
	Source string `json:"source"`
}

// FromFiles builds the document for files.
func FromFiles(files ccz.FileSet) *Document {
	structure := ccz.Describe(files)
	doc := &Document{
		DocType: DocType,
		Name:    ccz.AppName(files),
		Modules: make([]Module, 0, len(structure.Modules)),
	}
	for _, m := range structure.Modules {
		mod := Module{Name: m.Name, CaseType: m.CaseType, Forms: make([]Form, 0, len(m.Forms))}
		for _, f := range m.Forms {
			mod.Forms = append(mod.Forms, Form{
				Name:   f.Name,
				XMLNS:  f.XMLNS,
				Source: string(files[f.Path]),
			})
		}
		doc.Modules = append(doc.Modules, mod)
	}
	return doc
}

// Marshal encodes doc as indented JSON.
func Marshal(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding application document: %w", err)
	}
	return append(data, '\n'), nil
}
