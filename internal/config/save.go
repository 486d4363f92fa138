package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/umbra/internal/geo"
)

// SaveLocation writes coordinates into the config file at path, keeping
// comments and formatting of everything else. A missing file is created
// with only the location section.
func SaveLocation(path string, c geo.Coordinates) error {
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read config: %w", err)
	}

	var out []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		out, err = setYAMLLocation(data, c)
	default:
		out, err = setJSONCLocation(data, c)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("write config tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func setJSONCLocation(data []byte, c geo.Coordinates) ([]byte, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		data = []byte("{}")
	}
	v, err := hujson.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var ops []patchOp
	if v.Find("/location") == nil {
		ops = []patchOp{{Op: "add", Path: "/location", Value: map[string]float64{
			"latitude":  c.Latitude,
			"longitude": c.Longitude,
		}}}
	} else {
		ops = []patchOp{
			{Op: "add", Path: "/location/latitude", Value: c.Latitude},
			{Op: "add", Path: "/location/longitude", Value: c.Longitude},
		}
	}
	patch, err := json.Marshal(ops)
	if err != nil {
		return nil, err
	}
	if err := v.Patch(patch); err != nil {
		return nil, fmt.Errorf("patch config: %w", err)
	}
	v.Format()
	return v.Pack(), nil
}

func setYAMLLocation(data []byte, c geo.Coordinates) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if doc.Kind == 0 {
		doc.Kind = yaml.DocumentNode
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse config: top level must be a mapping")
	}

	loc := mappingValue(root, "location")
	if loc == nil {
		loc = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		root.Content = append(root.Content, scalar("location", "!!str"), loc)
	}
	setScalar(loc, "latitude", strconv.FormatFloat(c.Latitude, 'f', -1, 64))
	setScalar(loc, "longitude", strconv.FormatFloat(c.Longitude, 'f', -1, 64))

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

func scalar(value, tag string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setScalar(m *yaml.Node, key, value string) {
	if v := mappingValue(m, key); v != nil {
		v.Kind, v.Tag, v.Value, v.Content = yaml.ScalarNode, "!!float", value, nil
		return
	}
	m.Content = append(m.Content, scalar(key, "!!str"), scalar(value, "!!float"))
}
