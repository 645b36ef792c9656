package metadata

// bountyAssertionSchema is the fixed JSON Schema that resolved bounty and
// assertion metadata is validated against. Metadata is always a JSON array
// with one entry per submitted artifact.
var bountyAssertionSchema = []byte(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "filename": {"type": "string"},
      "mimetype": {"type": "string"},
      "sha256": {"type": "string"},
      "size": {"type": "integer"},
      "malware_family": {"type": "string"},
      "scanner": {
        "type": "object",
        "properties": {
          "environment": {
            "type": "object",
            "properties": {
              "architecture": {"type": "string"},
              "operating_system": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`)

// BountyAssertionSchema returns the embedded bounty/assertion metadata
// schema, for callers that construct their own Resolver.
func BountyAssertionSchema() []byte {
	return bountyAssertionSchema
}
