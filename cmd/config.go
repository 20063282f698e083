package cmd

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/gang-sim/gang-sim/sim"
)

// loadConfig reads a YAML config file over sim.DefaultConfig. Keys absent from
// the file keep their defaults; unknown keys are rejected so typos fail loudly.
// An empty path returns the defaults.
func loadConfig(path string) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return sim.Config{}, fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return sim.Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return sim.Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

//go:embed targets.schema.json
var targetsSchemaJSON string

// targetsFile is the JSON shape of a targets file: target name to heat and
// attribute weights.
type targetsFile struct {
	Targets map[string]map[string]float64 `json:"targets"`
}

// loadTargets reads and validates a targets file. An empty path returns
// sim.DefaultTargets().
func loadTargets(path string) ([]sim.Target, error) {
	if path == "" {
		return sim.DefaultTargets(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading targets: %w", err)
	}
	targets, err := parseTargets(data)
	if err != nil {
		return nil, fmt.Errorf("targets %s: %w", path, err)
	}
	return targets, nil
}

// parseTargets checks the document against the embedded schema, then builds the
// table in ordinal order and checks the weight sums.
func parseTargets(data []byte) ([]sim.Target, error) {
	schema, err := jsonschema.CompileString("targets.schema.json", targetsSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compiling targets schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, err
	}

	var f targetsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	targets := make([]sim.Target, sim.NumTargets)
	for name, fields := range f.Targets {
		tt, ok := sim.ParseTargetType(name)
		if !ok {
			return nil, fmt.Errorf("unknown target %q", name)
		}
		t := sim.Target{Type: tt, Name: name, Heat: fields["heat"]}
		for a := range t.Weights {
			t.Weights[a] = fields[sim.Attribute(a).String()]
		}
		targets[tt] = t
	}
	if err := sim.ValidateTargets(targets); err != nil {
		return nil, err
	}
	return targets, nil
}
