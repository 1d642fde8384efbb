// Package policy decodes IAM policy documents and checks the minimal
// structure the risk analyzer relies on.
package policy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/berkguzel/iamrisk/pkg/errs"
	"github.com/berkguzel/iamrisk/pkg/types"
	"sigs.k8s.io/yaml"
)

const op = "policy.Parse"

// Parse decodes a JSON or YAML policy document and validates its shape.
func Parse(data []byte) (types.PolicyDocument, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindValidation, op, "policy is not valid JSON or YAML", err)
	}

	var raw interface{}
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindValidation, op, "policy is not valid JSON", err)
	}
	if err := Validate(raw); err != nil {
		return types.PolicyDocument{}, err
	}

	var doc types.PolicyDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindValidation, op, "failed to decode policy document", err)
	}
	return doc, nil
}

// ParseIAM decodes a URL-encoded document as returned by the IAM API.
func ParseIAM(encoded string) (types.PolicyDocument, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindValidation, op, "failed to decode policy document", err)
	}
	return Parse([]byte(decoded))
}

// Validate checks a generically decoded document: Version and Statement
// present, every statement an object with Effect Allow or Deny and at least
// one of Action or NotAction. Statement may be a single object or a list.
func Validate(raw interface{}) error {
	doc, ok := raw.(map[string]interface{})
	if !ok {
		return errs.Validation(op, "policy must be a JSON object")
	}

	version, ok := doc["Version"]
	if !ok {
		return errs.Validation(op, "missing required field Version")
	}
	if _, ok := version.(string); !ok {
		return errs.Validation(op, "Version must be a string")
	}

	rawStatements, ok := doc["Statement"]
	if !ok {
		return errs.Validation(op, "missing required field Statement")
	}

	var statements []interface{}
	switch v := rawStatements.(type) {
	case []interface{}:
		statements = v
	case map[string]interface{}:
		statements = []interface{}{v}
	default:
		return errs.Validation(op, "Statement must be an object or a list of objects")
	}

	for i, s := range statements {
		if err := validateStatement(i+1, s); err != nil {
			return err
		}
	}
	return nil
}

func validateStatement(index int, raw interface{}) error {
	stmt, ok := raw.(map[string]interface{})
	if !ok {
		return errs.Validationf(op, "statement %d must be an object", index)
	}

	effect, _ := stmt["Effect"].(string)
	if effect != string(types.EffectAllow) && effect != string(types.EffectDeny) {
		return errs.Validationf(op, "statement %d: Effect must be Allow or Deny", index)
	}

	_, hasAction := stmt["Action"]
	_, hasNotAction := stmt["NotAction"]
	if !hasAction && !hasNotAction {
		return errs.Validationf(op, "statement %d: missing Action or NotAction", index)
	}

	if sid, ok := stmt["Sid"]; ok {
		if _, isString := sid.(string); !isString {
			return errs.Validationf(op, "statement %d: Sid must be a string", index)
		}
	}
	return nil
}

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// ExtractJSON returns the body of the first markdown code fence in text, or
// the trimmed text when there is none.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// Marshal renders doc as indented JSON.
func Marshal(doc types.PolicyDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy document: %v", err)
	}
	return data, nil
}
