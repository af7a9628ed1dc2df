// Package config loads the scheduler's root config plus any --globals and
// --tunable-values overlays (spec.md §6 "CLI surface") into generic YAML
// trees, merged shallow-then-deep, grounded on the teacher's
// RedSkyConfig.Load/Merge Loader composition pattern in config.go but
// stripped of the OAuth2/SaaS-account/cluster machinery this system has no
// use for (spec.md §1 lists config-file loading and schema validation
// themselves as an out-of-scope external collaborator; the core only merges
// already-parsed trees).
package config

import (
	"fmt"

	"github.com/benchtune/benchtune/internal/tunable"
)

// Tree is a generic, mergeable YAML document.
type Tree map[string]interface{}

// secretsKey is the top-level key under which a credentials envelope is
// carried, passed through opaque (spec.md §6 "Environment variables": "the
// core treats credentials as opaque strings passed through the
// global-config overlay").
const secretsKey = "secrets"

// Config is the merged result of the root scheduler config and every
// --globals overlay applied on top of it, in the order given.
type Config struct {
	Root    Tree
	Secrets map[string]string
}

// Load reads the root config file and merges each overlay file on top of it
// in order; a later overlay wins key-for-key. Any file that does not exist
// is treated as an empty tree, matching the teacher's fileLoader tolerance
// for a missing config file on first run.
func Load(rootFile string, overlayFiles ...string) (*Config, error) {
	root, err := readTree(rootFile)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", rootFile, err)
	}
	for _, f := range overlayFiles {
		overlay, err := readTree(f)
		if err != nil {
			return nil, fmt.Errorf("config: load overlay %s: %w", f, err)
		}
		root = Merge(root, overlay)
	}

	cfg := &Config{Root: root, Secrets: map[string]string{}}
	if raw, ok := root[secretsKey].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				cfg.Secrets[k] = s
			}
		}
	}
	return cfg, nil
}

// Merge combines overlay into base, recursing into nested maps and letting
// overlay's scalars and slices replace base's (spec.md §6: overlays "merged
// shallow-then-deep"). Neither argument is mutated.
func Merge(base, overlay Tree) Tree {
	out := make(Tree, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		baseChild, baseIsMap := out[k].(map[string]interface{})
		overlayChild, overlayIsMap := v.(map[string]interface{})
		if baseIsMap && overlayIsMap {
			out[k] = map[string]interface{}(Merge(baseChild, overlayChild))
			continue
		}
		out[k] = v
	}
	return out
}

// Decode unmarshals the merged root tree into v (a pointer to a typed
// config struct), via sigs.k8s.io/yaml's JSON-tag-based conversion.
func (c *Config) Decode(v interface{}) error {
	return decodeTree(c.Root, v)
}

// TunableValues loads a --tunable-values seed file and resolves each raw
// entry against the tunable each name identifies in g, producing the typed
// assignment map Groups.Assign expects (spec.md §6 "--tunable-values
// <path>...": "seed values").
func TunableValues(path string, g *tunable.Groups) (map[string]tunable.Value, error) {
	raw, err := readTree(path)
	if err != nil {
		return nil, fmt.Errorf("config: load tunable values %s: %w", path, err)
	}
	return resolveValues(raw, g)
}

func resolveValues(raw Tree, g *tunable.Groups) (map[string]tunable.Value, error) {
	out := make(map[string]tunable.Value, len(raw))
	for name, rv := range raw {
		t, ok := g.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("config: tunable value %q: no such tunable", name)
		}
		v, err := coerceValue(t.Type, rv)
		if err != nil {
			return nil, fmt.Errorf("config: tunable value %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func coerceValue(t tunable.Type, rv interface{}) (tunable.Value, error) {
	switch t {
	case tunable.TypeInteger:
		f, ok := asFloat(rv)
		if !ok {
			return tunable.Value{}, fmt.Errorf("expected a number, got %T", rv)
		}
		return tunable.IntValue(int64(f)), nil
	case tunable.TypeFloat:
		f, ok := asFloat(rv)
		if !ok {
			return tunable.Value{}, fmt.Errorf("expected a number, got %T", rv)
		}
		return tunable.FloatValue(f), nil
	case tunable.TypeCategorical:
		s, ok := rv.(string)
		if !ok {
			return tunable.Value{}, fmt.Errorf("expected a string, got %T", rv)
		}
		return tunable.CatValue(s), nil
	default:
		return tunable.Value{}, fmt.Errorf("unknown tunable type %q", t)
	}
}

func asFloat(rv interface{}) (float64, bool) {
	switch n := rv.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
