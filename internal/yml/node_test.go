package yml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func parse(t *testing.T, text string) *Node {
	t.Helper()
	doc := &yaml.Node{}
	require.NoError(t, yaml.Unmarshal([]byte(text), doc))
	return (*Node)(doc.Content[0])
}

func TestNode_Lookup(t *testing.T) {
	node := parse(t, "name: demo\nsteps: ~\nlimits: {max: 3}\n")
	assert.Equal(t, "demo", node.Lookup("name").Value)
	assert.True(t, node.Lookup("steps").IsNull())
	assert.True(t, node.Lookup("missing").IsNull())
	assert.Nil(t, node.Lookup("name").Lookup("x"))
	limits := map[string]int{}
	require.NoError(t, node.Lookup("limits").Decode(&limits))
	assert.Equal(t, map[string]int{"max": 3}, limits)
}

func TestNode_PairsKeepOrder(t *testing.T) {
	node := parse(t, "c: 1\na: 2\nb: 3\n")
	var keys []string
	require.NoError(t, node.Pairs(func(key string, _ *Node) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"c", "a", "b"}, keys)
}

func TestNode_Items(t *testing.T) {
	node := parse(t, "[x, y, z]")
	var values []string
	require.NoError(t, node.Items(func(index int, item *Node) error {
		assert.Equal(t, len(values), index)
		values = append(values, item.Value)
		return nil
	}))
	assert.Equal(t, []string{"x", "y", "z"}, values)
}
