package config

import "dario.cat/mergo"

// mergeYAMLOverDefaults fills zero-valued fields of raw from defaults
// without overriding anything the user set, mirroring the teacher's
// loader.go use of mergo to merge QueueConfig. Operates on the raw YAML
// shape so string duration fields merge correctly before resolveDurations
// parses them.
func mergeYAMLOverDefaults(raw, defaults *rootYAML) error {
	return mergo.Merge(raw, defaults)
}
