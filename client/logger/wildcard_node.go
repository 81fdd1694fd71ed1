package logger

import (
	"strings"
)

// wildcardNode is a trie of namespace parts. A "*" part matches exactly one
// namespace part and "**" matches any number of parts.
type wildcardNode struct {
	level    Level
	name     string
	children map[string]*wildcardNode
}

var _ Config = &wildcardNode{}

func newWildcardNode(config ConfigMap) Config {
	if config == nil {
		return nil
	}

	root := &wildcardNode{}

	for ns, level := range config {
		root.add(ns, level)
	}

	return root
}

func (n *wildcardNode) add(namespace string, level Level) {
	if namespace == "" {
		n.level = level

		return
	}

	node := n

	for _, name := range strings.Split(namespace, ":") {
		child, ok := node.children[name]
		if !ok {
			child = &wildcardNode{level: LevelUnknown, name: name}

			if node.children == nil {
				node.children = map[string]*wildcardNode{}
			}

			node.children[name] = child
		}

		node = child
	}

	node.level = level
}

func (n *wildcardNode) match(names []string) (Level, bool) {
	if len(names) == 0 {
		node := n

		if node.level == LevelUnknown {
			if child, ok := n.children["**"]; ok {
				node = child
			}
		}

		return node.level, node.level != LevelUnknown
	}

	if child, ok := n.children[names[0]]; ok {
		if level, ok := child.match(names[1:]); ok {
			return level, true
		}
	}

	if n.name == "**" {
		for i := range names {
			if child, ok := n.children[names[i]]; ok {
				if level, ok := child.match(names[i+1:]); ok {
					return level, true
				}
			}
		}

		if n.level != LevelUnknown {
			return n.level, true
		}
	}

	if child, ok := n.children["*"]; ok {
		if level, ok := child.match(names[1:]); ok {
			return level, true
		}
	}

	if child, ok := n.children["**"]; ok {
		if level, ok := child.match(names); ok {
			return level, true
		}
	}

	return LevelDisabled, false
}

// LevelForNamespace implements Config.
func (n *wildcardNode) LevelForNamespace(namespace string) Level {
	if namespace == "" {
		return n.level
	}

	if level, ok := n.match(strings.Split(namespace, ":")); ok {
		return level
	}

	return n.level
}
