package role

import (
	"gopkg.in/yaml.v3"
)

// Description is a serialisable view of the role network.
type Description struct {
	Variables []VariableDescription `yaml:"variables" json:"variables"`
}

// VariableDescription describes one node. Table rows follow States and
// columns enumerate parent states with the last parent varying fastest.
type VariableDescription struct {
	Name    string      `yaml:"name" json:"name"`
	States  []string    `yaml:"states" json:"states"`
	Parents []string    `yaml:"parents,omitempty" json:"parents,omitempty"`
	Table   [][]float64 `yaml:"table,flow" json:"table"`
}

// Describe returns the structure and tables of the role network.
func Describe() Description {
	var d Description
	for _, v := range network.Variables() {
		cpd, _ := network.CPD(v.Name)
		values := cpd.Values()
		columns := len(values) / len(v.States)
		table := make([][]float64, len(v.States))
		for s := range table {
			table[s] = values[s*columns : (s+1)*columns]
		}
		d.Variables = append(d.Variables, VariableDescription{
			Name:    v.Name,
			States:  v.States,
			Parents: network.Parents(v.Name),
			Table:   table,
		})
	}
	return d
}

// DescribeYAML renders Describe as YAML.
func DescribeYAML() ([]byte, error) {
	return yaml.Marshal(Describe())
}
