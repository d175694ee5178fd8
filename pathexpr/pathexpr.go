// Package pathexpr resolves a document's destination path from a template
// string and its metadata: plain Go templates for static paths, a
// "$js:"-prefixed goja expression for computed ones. The engine core
// never imports this package directly; only the default file-system
// collaborator (collaborators/osfs) does.
package pathexpr

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/dop251/goja"

	"github.com/siteforge/pipeline/models"
)

// Resolve renders tmpl against doc. Plain templates ("{{.title}}.html")
// are rendered with text/template against the document's metadata. A
// template prefixed with "$js:" is evaluated as a JavaScript expression
// against a `doc` object exposing path, sourcePath and every metadata key,
// for logic text/template cannot express (case conversion, slugification,
// conditionals).
func Resolve(tmpl string, doc models.Document) (string, error) {
	tmpl = strings.TrimSpace(tmpl)
	if strings.HasPrefix(tmpl, "$js:") {
		return resolveJS(strings.TrimSpace(strings.TrimPrefix(tmpl, "$js:")), doc)
	}
	return resolveGoTemplate(tmpl, doc)
}

func resolveGoTemplate(tmpl string, doc models.Document) (string, error) {
	t, err := template.New("dest").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("pathexpr: parse template: %w", err)
	}

	data := metadataToMap(doc)
	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("pathexpr: execute template: %w", err)
	}
	return buf.String(), nil
}

func resolveJS(expr string, doc models.Document) (string, error) {
	rt := goja.New()

	docObj := metadataToMap(doc)
	docObj["path"] = doc.DestPath
	docObj["sourcePath"] = doc.SourcePath

	if err := rt.Set("doc", docObj); err != nil {
		return "", fmt.Errorf("pathexpr: set doc: %w", err)
	}

	wrapped := "(function() {\n return " + expr + "\n})()"
	result, err := rt.RunString(wrapped)
	if err != nil {
		return "", fmt.Errorf("pathexpr: evaluate %q: %w", expr, err)
	}

	exported := result.Export()
	s, ok := exported.(string)
	if !ok {
		return "", fmt.Errorf("pathexpr: expression %q did not evaluate to a string, got %T", expr, exported)
	}
	return s, nil
}

func metadataToMap(doc models.Document) map[string]any {
	out := make(map[string]any, doc.Metadata.Len()+1)
	for _, k := range doc.Metadata.Keys() {
		v, _ := doc.Metadata.Get(k)
		out[k] = v
	}
	return out
}
