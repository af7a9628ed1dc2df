package config

import (
	"os"

	"sigs.k8s.io/yaml"
)

// readTree decodes a YAML (or JSON, which is a YAML subset) file into a
// Tree. A missing file decodes to an empty tree, matching the teacher's
// file.read tolerance for a config file that has not been created yet.
func readTree(filename string) (Tree, error) {
	if filename == "" {
		return Tree{}, nil
	}
	b, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Tree{}, nil
		}
		return nil, err
	}

	var t Tree
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	if t == nil {
		t = Tree{}
	}
	return t, nil
}

// decodeTree re-marshals t and unmarshals it into v, the same
// marshal-to-JSON-then-unmarshal trick sigs.k8s.io/yaml itself uses
// internally, letting v be any struct with `json` tags.
func decodeTree(t Tree, v interface{}) error {
	b, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, v)
}
