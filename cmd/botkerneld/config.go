package main

import "os"

// defaultConfigPath is used whenever --config is left empty.
const defaultConfigPath = "botkerneld.yaml"

// resolveConfigPath applies the BOTKERNELD_CONFIG env override, then the
// flag value, then the default path, in that precedence order.
func resolveConfigPath(path string) string {
	if v := os.Getenv("BOTKERNELD_CONFIG"); v != "" {
		return v
	}
	if path != "" {
		return path
	}
	return defaultConfigPath
}
