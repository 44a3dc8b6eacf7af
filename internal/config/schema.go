// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://holomush.dev/schemas/authority-config.schema.json"

var compiledSchema = sync.OnceValues(compileSchema)

// Schema returns the JSON Schema of the YAML config file.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Authority configuration"
	schema.Description = "Schema for the authority YAML config file"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	return data, nil
}

func compileSchema() (*jschema.Schema, error) {
	raw, err := Schema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	return sch, nil
}

// ValidateYAML checks a config file against Schema. Unknown keys and values
// of the wrong type are rejected.
func ValidateYAML(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").Wrapf(err, "invalid YAML")
	}
	if doc == nil {
		return nil
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").Wrapf(err, "config file does not match schema")
	}
	return nil
}

// toJSONTypes round-trips YAML values through JSON so the validator sees
// json.Number values and string-keyed maps.
func toJSONTypes(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	out, err := jschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return v
	}
	return out
}

// secretKeys are blanked by Redacted.
var secretKeys = []string{"password", "jwt_secret"}

// urlKeys may embed credentials; only their password part is blanked.
var urlKeys = []string{"url"}

// Redacted returns the configuration as YAML with secrets replaced.
func (c *Config) Redacted() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	redactMap(doc)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}

func redactMap(m map[string]any) {
	for key, v := range m {
		switch val := v.(type) {
		case map[string]any:
			redactMap(val)
		case string:
			if val == "" {
				continue
			}
			for _, s := range secretKeys {
				if strings.Contains(key, s) {
					m[key] = "[REDACTED]"
				}
			}
			for _, u := range urlKeys {
				if key == u {
					m[key] = redactURL(val)
				}
			}
		}
	}
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
