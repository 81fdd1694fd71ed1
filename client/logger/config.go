package logger

import (
	"strings"
)

// Config resolves the logging Level for a namespace.
type Config interface {
	LevelForNamespace(namespace string) Level
}

// ConfigMap maps exact namespaces to levels.
type ConfigMap map[string]Level

// NewConfigMapFromString parses a comma separated list of namespace:level
// pairs, e.g. "client:negotiator:debug,:info". A missing level means info.
func NewConfigMapFromString(str string) ConfigMap {
	if str == "" {
		return nil
	}

	parts := strings.Split(str, ",")

	ret := make(ConfigMap, len(parts))

	for _, ns := range parts {
		level := LevelInfo

		if index := strings.LastIndex(ns, ":"); index > -1 {
			if l, ok := LevelFromString(ns[index+1:]); ok {
				level = l
				ns = ns[:index]
			}
		}

		ret[ns] = level
	}

	return ret
}

// NewConfigFromString returns a Config supporting * and ** wildcards in
// namespaces, or nil when str is empty.
func NewConfigFromString(str string) Config {
	return NewConfig(NewConfigMapFromString(str))
}

// NewConfig builds a wildcard aware Config from config.
func NewConfig(config ConfigMap) Config {
	return newWildcardNode(config)
}

// LevelForNamespace implements Config. Only exact namespaces and the last
// part of a namespace are matched.
func (c ConfigMap) LevelForNamespace(namespace string) Level {
	if level, ok := c[namespace]; ok {
		return level
	}

	if index := strings.LastIndex(namespace, ":"); index > -1 {
		if level, ok := c[namespace[index+1:]]; ok {
			return level
		}
	}

	return c[""]
}
