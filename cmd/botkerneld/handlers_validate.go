package main

import (
	"fmt"
	"os"

	"github.com/tgdsl/runtime/internal/dsl"
)

// runValidate parses and compiles the spec file at path, printing the
// result. It exercises exactly the dsl.ParseDoc/dsl.Compile path the
// server runs on PUT /bots/{id}/spec and POST /bots/{id}/validate, so a CI
// run here catches the same errors a publish attempt would.
func runValidate(path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("validate: read %s: %w", path, err)
	}

	doc, err := dsl.ParseDoc(body)
	if err != nil {
		return fmt.Errorf("validate: parse: %w", err)
	}
	compiled, err := dsl.Compile("validate", 0, doc)
	if err != nil {
		return fmt.Errorf("validate: compile: %w", err)
	}

	fmt.Printf("ok: %d intents, %d menu flows, %d wizard flows\n",
		len(compiled.Intents), len(compiled.MenuFlows), len(compiled.WizardFlows))
	return nil
}
