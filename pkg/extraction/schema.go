package extraction

import "encoding/json"

const intakeFieldsSchemaName = "intake_call_fields_v1"

const intakeFieldsSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["name", "email", "phone", "claim_number", "purpose", "case_fields"],
  "properties": {
    "name": { "type": ["string", "null"] },
    "email": { "type": ["string", "null"] },
    "phone": { "type": ["string", "null"] },
    "claim_number": { "type": ["string", "null"] },
    "purpose": { "type": ["string", "null"] },
    "case_fields": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["field", "value"],
        "properties": {
          "field": { "type": "string" },
          "value": { "type": "string" }
        }
      }
    }
  }
}`

var intakeFieldsSchema = mustParseSchema(intakeFieldsSchemaJSON)

func mustParseSchema(rawSchema string) map[string]any {
	var schema map[string]any
	if err := json.Unmarshal([]byte(rawSchema), &schema); err != nil {
		panic(err)
	}
	return schema
}
