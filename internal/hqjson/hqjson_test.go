package hqjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/ccz/ccztest"
)

func TestFromFiles(t *testing.T) {
	doc := FromFiles(ccztest.Files())

	assert.Equal(t, DocType, doc.DocType)
	assert.Equal(t, "Household Survey", doc.Name)
	require.Len(t, doc.Modules, 1)

	m := doc.Modules[0]
	assert.Equal(t, "Households", m.Name)
	assert.Equal(t, "household", m.CaseType)
	require.Len(t, m.Forms, 2)
	assert.Equal(t, "Register Household", m.Forms[0].Name)
	assert.Equal(t, ccztest.RegistrationXMLNS, m.Forms[0].XMLNS)
	assert.Equal(t, ccztest.RegistrationForm, m.Forms[0].Source)
	assert.Equal(t, ccztest.VisitXMLNS, m.Forms[1].XMLNS)
}

func TestFromFiles_NoForms(t *testing.T) {
	doc := FromFiles(ccz.FileSet{ccz.ProfilePath: []byte(ccztest.Profile), ccz.SuitePath: []byte("<suite/>")})

	data, err := Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc_type":"Application","name":"Household Survey","modules":[]}`, string(data))
}

func TestMarshal_Shape(t *testing.T) {
	data, err := Marshal(FromFiles(ccztest.Files()))
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	modules := raw["modules"].([]any)
	form := modules[0].(map[string]any)["forms"].([]any)[0].(map[string]any)
	assert.ElementsMatch(t, []string{"name", "xmlns", "source"}, keys(form))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
