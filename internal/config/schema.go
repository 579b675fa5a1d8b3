package config

import (
	"reflect"

	"github.com/iancoleman/orderedmap"
	"github.com/invopop/jsonschema"

	"skirmish/server/internal/animation"
)

// AnimationsSchema describes the YAML document accepted by LoadAnimations
// so editors can validate animation files before the server loads them.
func AnimationsSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	entry := reflector.ReflectFromType(reflect.TypeOf(animation.Entry{}))
	entry.Version = ""
	entry.Title = "Animation entry"

	properties := orderedmap.New()
	properties.Set("animations", &jsonschema.Schema{
		Type:                 "object",
		Description:          "Animation ids mapped to their action kind, cooldown and cost.",
		MinProperties:        1,
		AdditionalProperties: entry,
	})

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Skirmish animation table",
		Type:        "object",
		Properties:  properties,
		Required:    []string{"animations"},
		Description: "Loaded from SKIRMISH_ANIMATIONS_FILE at startup.",
	}
}
