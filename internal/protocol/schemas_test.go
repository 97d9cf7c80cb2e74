package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	eventSchema := compile("event.schema.json")
	cmdSchema := compile("cmd.schema.json")
	resultSchema := compile("result.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "actor_name":"steve"
	}`), &hello)
	validate(helloSchema, hello)

	var event any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT",
	  "protocol_version":"1.0",
	  "kind":"BREAK",
	  "subject":"SUGAR_CANE",
	  "tool":"IRON_AXE",
	  "world":"overworld",
	  "pos":[120,64,-33],
	  "column":2,
	  "grown":true
	}`), &event)
	validate(eventSchema, event)

	var cmd any
	_ = json.Unmarshal([]byte(`{
	  "type":"CMD",
	  "protocol_version":"1.0",
	  "op":"JOIN",
	  "track":"miner"
	}`), &cmd)
	validate(cmdSchema, cmd)

	var result any
	_ = json.Unmarshal([]byte(`{
	  "type":"RESULT",
	  "op":"JOIN",
	  "ok":false,
	  "code":"E_TRACK_LIMIT",
	  "detail":"limit 2"
	}`), &result)
	validate(resultSchema, result)

	var badEvent any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT",
	  "protocol_version":"1.0",
	  "kind":"TELEPORT",
	  "subject":"STONE",
	  "world":"overworld",
	  "pos":[0,0,0]
	}`), &badEvent)
	if err := eventSchema.Validate(badEvent); err == nil {
		t.Fatalf("expected unknown event kind rejected")
	}
}
