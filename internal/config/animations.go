package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"skirmish/server/internal/animation"
)

type animationFile struct {
	Animations animation.Table `yaml:"animations"`
}

// LoadAnimations reads an animation table from a YAML file.
func LoadAnimations(path string, minWindow float64) (animation.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read animations: %w", err)
	}
	return ParseAnimations(data, minWindow)
}

// ParseAnimations decodes and validates an animation table. Unknown keys
// are rejected.
func ParseAnimations(data []byte, minWindow float64) (animation.Table, error) {
	var file animationFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode animations: %w", err)
	}
	if len(file.Animations) == 0 {
		return nil, fmt.Errorf("decode animations: no animations defined")
	}
	if err := file.Animations.Validate(minWindow); err != nil {
		return nil, fmt.Errorf("validate animations: %w", err)
	}
	return file.Animations, nil
}
