package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// courseSchema describes the course payload accepted by create and update.
const courseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "description", "difficulty"],
  "properties": {
    "title":       {"type": "string", "minLength": 1, "maxLength": 100},
    "description": {"type": "string", "minLength": 1, "maxLength": 1000},
    "difficulty":  {"enum": ["Beginner", "Intermediate", "Advanced"]},
    "status":      {"enum": ["Draft", "Published"]},
    "duration":    {"type": "string"},
    "instructor":  {"type": "string"},
    "image":       {"type": "string"},
    "tags":        {"type": "array", "items": {"type": "string"}},
    "rating":        {"type": "number", "minimum": 0, "maximum": 5},
    "ratingsCount":  {"type": "integer", "minimum": 0},
    "price":         {"type": "number", "minimum": 0},
    "discountPrice": {"type": "number", "minimum": 0},
    "lessons": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "_id":      {"type": "string"},
          "title":    {"type": "string", "minLength": 1},
          "duration": {"type": "string"},
          "content":  {"type": "string"},
          "videoUrl": {"type": "string"},
          "order":    {"type": "integer", "minimum": 0}
        }
      }
    },
    "quizQuestions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question", "options", "correctAnswer"],
        "properties": {
          "_id":           {"type": "string"},
          "question":      {"type": "string", "minLength": 1},
          "options":       {"type": "array", "minItems": 2, "items": {"type": "string"}},
          "correctAnswer": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

type payloadSchema struct {
	schema *gojsonschema.Schema
}

func newPayloadSchema(src string) (*payloadSchema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &payloadSchema{schema: s}, nil
}

// Validate checks body against the schema. Schema violations are returned as
// fieldErrors; malformed JSON is returned as a plain error.
func (p *payloadSchema) Validate(body []byte) error {
	result, err := p.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}
	out := make(fieldErrors, len(result.Errors()))
	for _, re := range result.Errors() {
		field := re.Field()
		if field == "(root)" {
			if prop, ok := re.Details()["property"].(string); ok {
				field = prop
			}
		}
		field = strings.TrimPrefix(field, "(root).")
		if _, seen := out[field]; !seen {
			out[field] = re.Description()
		}
	}
	return out
}
