package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Embedded JSON Schemas for the three bundle artifacts. Validation runs before
// every write; a violation means a driver bug, not bad upstream data, so the
// writer surfaces it as a hard error.

const cardSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "url", "title", "snippet", "provider", "source_domain",
               "credibility_score", "relevance_score", "confidence", "collected_at"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "url": {"type": "string", "minLength": 1},
    "title": {"type": "string", "minLength": 1},
    "snippet": {"type": "string", "minLength": 1},
    "provider": {"type": "string", "minLength": 1},
    "source_domain": {"type": "string", "minLength": 1},
    "credibility_score": {"type": "number", "minimum": 0, "maximum": 1},
    "relevance_score": {"type": "number", "minimum": 0, "maximum": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "collected_at": {"type": "string", "pattern": "Z$"},
    "date": {"type": "string"},
    "author": {"type": "string"},
    "doi": {"type": "string"},
    "pmid": {"type": "string"},
    "arxiv_id": {"type": "string"},
    "quote_span": {"type": "string", "maxLength": 280},
    "content_hash": {"type": "string"},
    "reachability": {"type": "number", "minimum": 0, "maximum": 1},
    "is_primary_source": {"type": "boolean"},
    "stance": {"enum": ["supports", "disputes", "neutral"]},
    "triangulated": {"type": "boolean"},
    "disputed_by": {"type": "array", "items": {"type": "string"}},
    "controversy_score": {"type": "number"},
    "metadata": {"type": "object"}
  }
}`

const metricsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["primary_share", "triangulation_rate", "domain_concentration",
               "unique_domains", "pass_primary", "pass_triangulation",
               "pass_concentration", "thresholds_used"],
  "properties": {
    "primary_share": {"type": "number", "minimum": 0, "maximum": 1},
    "triangulation_rate": {"type": "number", "minimum": 0, "maximum": 1},
    "domain_concentration": {"type": "number", "minimum": 0, "maximum": 1},
    "unique_domains": {"type": "integer", "minimum": 0},
    "credible_cards": {"type": "integer", "minimum": 0},
    "provider_error_rate": {"type": "number", "minimum": 0, "maximum": 1},
    "provider_entropy": {"type": "number", "minimum": 0, "maximum": 1},
    "recent_primary_count": {"type": "integer", "minimum": 0},
    "triangulated_clusters": {"type": "integer", "minimum": 0},
    "pass_primary": {"type": "boolean"},
    "pass_triangulation": {"type": "boolean"},
    "pass_concentration": {"type": "boolean"},
    "thresholds_used": {"type": "object"}
  }
}`

const clustersSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["indices", "domains", "representative_claim", "claim_type",
                 "is_triangulated", "member_ids"],
    "properties": {
      "indices": {"type": "array", "items": {"type": "integer", "minimum": 0}},
      "domains": {"type": "array", "items": {"type": "string"}},
      "member_ids": {"type": "array", "items": {"type": "string", "minLength": 1}},
      "representative_claim": {"type": "string"},
      "claim_type": {"enum": ["numeric_measure", "mechanism_or_theory", "opinion_advocacy", "news_context"]},
      "is_triangulated": {"type": "boolean"},
      "meta": {"type": "object"}
    }
  }
}`

var (
	cardSchema     = jsonschema.MustCompileString("evidence_card.schema.json", cardSchemaJSON)
	metricsSchema  = jsonschema.MustCompileString("metrics.schema.json", metricsSchemaJSON)
	clustersSchema = jsonschema.MustCompileString("clusters.schema.json", clustersSchemaJSON)
)

func validateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode for validation: %w", err)
	}
	return schema.Validate(v)
}

func validateCard(line []byte) error     { return validateJSON(cardSchema, line) }
func validateMetrics(data []byte) error  { return validateJSON(metricsSchema, data) }
func validateClusters(data []byte) error { return validateJSON(clustersSchema, data) }
