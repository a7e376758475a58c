package registry

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/skillmeat/pkg/marketplace/brokers"
)

// ConfigFile is the broker configuration document inside the config directory
const ConfigFile = "marketplace.yaml"

// allowedSchemes are the endpoint schemes a broker may use
var allowedSchemes = []string{"local://", "file://", "http://", "https://"}

const defaultDocument = `# Marketplace brokers. The entry name selects the provider type.
brokers:
  local:
    enabled: true
    endpoint: local://%s
  skillmeat:
    enabled: true
    endpoint: https://marketplace.skillmeat.dev/api/v1
    rate_limit:
      max_requests: 60
      time_window: 60
      retry_after: 60
    cache_ttl: 300
    token_env: SKILLMEAT_TOKEN
  claudehub:
    enabled: false
    endpoint: https://api.claudehub.dev/v1
    cache_ttl: 600
  custom:
    enabled: false
    endpoint: https://marketplace.example.com/api
    schema_url: /schema
`

// DefaultDocument renders the document written on first use. The local
// provider serves <configDir>/marketplace.
func DefaultDocument(configDir string) []byte {
	return []byte(fmt.Sprintf(defaultDocument, filepath.Join(configDir, "marketplace")))
}

// entry is one broker definition from the document
type entry struct {
	name string
	node *yaml.Node
}

// readDocument parses the document into a node tree
func readDocument(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", ErrBrokerRegistry, path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: malformed %s: %v", ErrBrokerRegistry, filepath.Base(path), err)
	}
	if root.Kind == 0 {
		// empty file
		return &root, nil
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s must be a mapping", ErrBrokerRegistry, filepath.Base(path))
	}
	return &root, nil
}

// brokersNode returns the brokers mapping, or nil when the document has none
func brokersNode(root *yaml.Node) (*yaml.Node, error) {
	if root.Kind == 0 {
		return nil, nil
	}
	node := mappingValue(root.Content[0], "brokers")
	if node == nil {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: brokers must be a mapping", ErrBrokerRegistry)
	}
	return node, nil
}

func entries(root *yaml.Node) ([]entry, error) {
	node, err := brokersNode(root)
	if err != nil || node == nil {
		return nil, err
	}

	out := make([]entry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, entry{name: node.Content[i].Value, node: node.Content[i+1]})
	}
	return out, nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// decodeStrict decodes an entry into a provider config, rejecting keys the
// provider does not know.
func decodeStrict(node *yaml.Node, cfg brokers.Config) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// setEnabled rewrites the enabled key of one entry in place
func setEnabled(root *yaml.Node, name string, enabled bool) error {
	node, err := brokersNode(root)
	if err != nil {
		return err
	}
	e := mappingValue(node, name)
	if e == nil {
		return fmt.Errorf("%w: broker %s is not configured", ErrBrokerRegistry, name)
	}
	if e.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: broker %s must be a mapping", ErrBrokerRegistry, name)
	}

	value := "false"
	if enabled {
		value = "true"
	}
	if v := mappingValue(e, "enabled"); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = "!!bool"
		v.Value = value
		return nil
	}
	e.Content = append([]*yaml.Node{
		{Kind: yaml.ScalarNode, Tag: "!!str", Value: "enabled"},
		{Kind: yaml.ScalarNode, Tag: "!!bool", Value: value},
	}, e.Content...)
	return nil
}

// writeDocument encodes the node tree and atomically replaces path
func writeDocument(path string, root *yaml.Node) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("%w: cannot encode document: %v", ErrBrokerRegistry, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w: cannot encode document: %v", ErrBrokerRegistry, err)
	}
	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerRegistry, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrBrokerRegistry, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerRegistry, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerRegistry, err)
	}
	return nil
}

func allowedEndpoint(endpoint string) bool {
	for _, scheme := range allowedSchemes {
		if strings.HasPrefix(endpoint, scheme) {
			return true
		}
	}
	return false
}
