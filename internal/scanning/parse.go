package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/receipt-items/internal/extraction"
)

// structuredSchema is the loose shape every structured model output must
// have before its entries are trusted.
const structuredSchema = `{
	"type": "object",
	"properties": {
		"menu": {
			"type": ["array", "object", "null"],
			"items": {"type": "object"}
		},
		"items": {
			"type": ["array", "object", "null"],
			"items": {"type": "object"}
		}
	}
}`

var structuredValidator = mustCompileSchema("structured.json", structuredSchema)

func mustCompileSchema(url, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("adding schema %s: %v", url, err))
	}
	s, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compiling schema %s: %v", url, err))
	}
	return s
}

// isolateJSON strips markdown code fences and anything around the outermost
// JSON object.
func isolateJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

func decodeStructured(text string) (extraction.FieldDocument, error) {
	body, err := isolateJSON(text)
	if err != nil {
		return extraction.FieldDocument{}, err
	}

	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return extraction.FieldDocument{}, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := structuredValidator.Validate(v); err != nil {
		return extraction.FieldDocument{}, fmt.Errorf("structured output does not match schema: %w", err)
	}
	return extraction.DecodeFieldDocument([]byte(body))
}

// ParseStructured decodes a structured model response. When the response is
// not usable, the raw text is kept under "raw" and no entries are returned,
// so extraction yields an empty item list instead of failing.
func ParseStructured(text string) extraction.FieldDocument {
	doc, err := decodeStructured(text)
	if err != nil {
		slog.Warn("Structured output not decodable, keeping raw text", "error", err)
		return extraction.FieldDocument{Raw: map[string]any{"raw": text}}
	}
	return doc
}

// parseTranscript splits a plain text transcription into lines.
func parseTranscript(text string) []string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.Trim(text, "\n")
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

// ocrEnvelope is the JSON an OCR wrapper program writes to stdout.
type ocrEnvelope struct {
	Error    *string         `json:"error"`
	Lines    []string        `json:"lines"`
	RecTexts []string        `json:"rec_texts"`
	Text     *string         `json:"text"`
	Menu     json.RawMessage `json:"menu"`
	Raw      json.RawMessage `json:"raw"`
}

// decodeOCROutput turns an OCR wrapper's output envelope into a document.
// Line lists win over text, and a non-empty "error" is returned as an
// error. Anything else is treated as a structured model tree, taken from
// "raw" when the wrapper nests it there.
func decodeOCROutput(data []byte) (extraction.Document, error) {
	var env ocrEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding ocr output: %w", err)
	}
	if env.Error != nil && *env.Error != "" {
		return nil, fmt.Errorf("ocr engine: %s", *env.Error)
	}

	switch {
	case env.Lines != nil:
		return extraction.LineDocument{Lines: env.Lines}, nil
	case env.RecTexts != nil:
		return extraction.LineDocument{Lines: env.RecTexts}, nil
	case len(env.Menu) > 0:
		return ParseStructured(string(data)), nil
	case len(env.Raw) > 0 && !bytes.Equal(bytes.TrimSpace(env.Raw), []byte("null")):
		raw := bytes.TrimSpace(env.Raw)
		if raw[0] == '{' {
			return ParseStructured(string(raw)), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return ParseStructured(s), nil
		}
		return extraction.FieldDocument{Raw: map[string]any{"raw": string(raw)}}, nil
	case env.Text != nil:
		return extraction.LineDocument{Lines: parseTranscript(*env.Text)}, nil
	}
	return ParseStructured(string(data)), nil
}
