package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/sequencer/internal/validation"
	"github.com/rendis/sequencer/pkg/schema"
)

const documentSchemaURL = "https://sequencer.dev/schemas/activities.json"

// documentSchemaJSON describes activity definition documents.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://sequencer.dev/schemas/activities.json",
  "type": "object",
  "required": ["activities"],
  "properties": {
    "activities": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/activity" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "activity": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {
          "type": "string",
          "pattern": "^[A-Za-z0-9_.:-]+$"
        },
        "title": { "type": "string" },
        "description": { "type": "string" },
        "requirements": {
          "type": "array",
          "items": { "$ref": "#/$defs/requirement" }
        },
        "validators": {
          "type": "array",
          "items": { "$ref": "#/$defs/validator" }
        },
        "parameters": {
          "type": "array",
          "items": { "$ref": "#/$defs/parameter" }
        }
      },
      "additionalProperties": false
    },
    "requirement": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": {
          "type": "string",
          "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"
        },
        "type": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "min_occurs": { "type": "integer", "minimum": 0 },
        "max_occurs": { "type": "integer", "minimum": 0 },
        "create": { "type": "boolean" },
        "object_config": { "type": "object" },
        "validator": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    },
    "validator": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "requirement": { "type": "string" },
        "config": { "type": "object" }
      },
      "additionalProperties": false
    },
    "parameter": {
      "type": "object",
      "required": ["name", "path"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "path": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    }
  }
}`

// TypeLookup reports whether a data object type can be created.
type TypeLookup interface {
	Has(typeName string) bool
}

// ValidatorLookup resolves the role of a named validator.
type ValidatorLookup interface {
	RoleOf(name string) (validation.Role, bool)
}

// DocumentValidator checks activity definition documents in two stages:
// structural (JSON Schema) then semantic (names, cardinality, references).
// Semantic checks are skipped when the structure is invalid. It is safe for
// concurrent use.
type DocumentValidator struct {
	schema     *jsonschema.Schema
	types      TypeLookup
	validators ValidatorLookup
}

// NewDocumentValidator compiles the document schema. types and validators
// may be nil to skip the corresponding reference checks.
func NewDocumentValidator(types TypeLookup, validators ValidatorLookup) (*DocumentValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource(documentSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}
	compiled, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}

	return &DocumentValidator{schema: compiled, types: types, validators: validators}, nil
}

// ValidateRaw checks a decoded but untyped document (as produced by a YAML
// or JSON decoder) against the schema.
func (v *DocumentValidator) ValidateRaw(raw any) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	doc, err := toJSONValue(raw)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "document is not JSON compatible: "+err.Error())
		return result
	}
	if err := v.schema.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("/", schema.ErrCodeValidation, err.Error())
			return result
		}
		for _, violation := range collectViolations(verr) {
			result.AddError(violation.path, schema.ErrCodeValidation, violation.message)
		}
	}
	return result
}

// Validate runs the semantic stage on a typed document. known reports ids
// already registered, which count as duplicates.
func (v *DocumentValidator) Validate(doc *schema.ActivityDocument, known func(id string) bool) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if doc == nil {
		result.AddError("/", schema.ErrCodeValidation, "document is nil")
		return result
	}

	seen := make(map[string]bool, len(doc.Activities))
	for i := range doc.Activities {
		info := &doc.Activities[i]
		path := fmt.Sprintf("activities[%d]", i)

		switch {
		case info.ID == "":
			result.AddError(path+".id", schema.ErrCodeValidation, "activity id is empty")
		case seen[info.ID]:
			result.AddError(path+".id", schema.ErrCodeConflict, fmt.Sprintf("duplicate activity id %q", info.ID))
		case known != nil && known(info.ID):
			result.AddError(path+".id", schema.ErrCodeConflict, fmt.Sprintf("activity %q already registered", info.ID))
		}
		seen[info.ID] = true

		v.validateActivity(info, path, result)
	}
	return result
}

func (v *DocumentValidator) validateActivity(info *schema.ActivityInfo, path string, result *schema.ValidationResult) {
	names := make(map[string]bool, len(info.Requirements))
	for j, req := range info.Requirements {
		rpath := fmt.Sprintf("%s.requirements[%d]", path, j)

		if req.Name == "" {
			result.AddError(rpath+".name", schema.ErrCodeValidation, "requirement name is empty")
		} else if names[req.Name] {
			result.AddError(rpath+".name", schema.ErrCodeConflict, fmt.Sprintf("duplicate requirement %q", req.Name))
		}
		names[req.Name] = true

		if req.MinOccurs < 0 || req.MaxOccurs < 0 {
			result.AddError(rpath, schema.ErrCodeValidation, "occurrence bounds must not be negative")
		}
		if req.MaxOccurs > 0 && req.MinOccurs > req.MaxOccurs {
			result.AddError(rpath+".min_occurs", schema.ErrCodeValidation,
				fmt.Sprintf("min_occurs (%d) exceeds max_occurs (%d)", req.MinOccurs, req.MaxOccurs))
		}
		if req.Create && req.EmptyContainer() {
			result.AddWarning(rpath+".create", schema.ErrCodeValidation,
				"create is implied by min_occurs = max_occurs = 0")
		}

		if v.types != nil && req.Type != "" && !v.types.Has(req.Type) {
			result.AddError(rpath+".type", schema.ErrCodeUnknownType,
				fmt.Sprintf("object type %q not registered", req.Type))
		}
		if req.Validator != "" {
			v.expectRole(req.Validator, validation.RoleObject, rpath+".validator", result)
		}
	}

	for j, ref := range info.Validators {
		vpath := fmt.Sprintf("%s.validators[%d]", path, j)
		if ref.Requirement != "" {
			if !names[ref.Requirement] {
				result.AddError(vpath+".requirement", schema.ErrCodeValidation,
					fmt.Sprintf("references non-existent requirement %q", ref.Requirement))
			}
			v.expectRole(ref.Name, validation.RoleObject, vpath+".name", result)
			continue
		}
		v.expectRole(ref.Name, "", vpath+".name", result)
	}

	for j, p := range info.Parameters {
		if _, err := gojq.Parse(p.Path); err != nil {
			result.AddError(fmt.Sprintf("%s.parameters[%d].path", path, j), schema.ErrCodeExpression,
				fmt.Sprintf("invalid jq path %q: %s", p.Path, err.Error()))
		}
	}
}

// expectRole checks that name is a registered validator, and of role want
// unless want is empty.
func (v *DocumentValidator) expectRole(name string, want validation.Role, path string, result *schema.ValidationResult) {
	if v.validators == nil {
		return
	}
	role, ok := v.validators.RoleOf(name)
	if !ok {
		result.AddError(path, schema.ErrCodeNotFound, fmt.Sprintf("validator %q not registered", name))
		return
	}
	if want != "" && role != want {
		result.AddError(path, schema.ErrCodeValidation,
			fmt.Sprintf("validator %q is a %s validator, expected %s", name, role, want))
	}
}

type violation struct {
	path    string
	message string
}

// collectViolations flattens a ValidationError tree into its leaves.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []violation{{path: loc, message: verr.Error()}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

// toJSONValue round-trips v through encoding/json so numbers become
// json.Number, as the schema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}
