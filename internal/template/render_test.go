package template

import "testing"

func TestRender_Scalar(t *testing.T) {
	out, err := Render("Hello {{name}}!", Scope{"name": "world"}, "")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "Hello world!" {
		t.Errorf("Render() = %q", out)
	}
}

func TestRender_MissingNameIsEmpty(t *testing.T) {
	out, err := Render("X{{missing}}Y", Scope{}, "")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "XY" {
		t.Errorf("Render() = %q", out)
	}
}

func TestRender_Bool(t *testing.T) {
	out, _ := Render("{{ok}}", Scope{"ok": true}, "")
	if out != "True" {
		t.Errorf("Render() = %q, want True", out)
	}
	out, _ = Render("{{ok}}", Scope{"ok": false}, "")
	if out != "False" {
		t.Errorf("Render() = %q, want False", out)
	}
}

func TestRender_Each(t *testing.T) {
	scope := Scope{
		"items": []Scope{
			{"n": "a"},
			{"n": "b"},
		},
	}
	out, err := Render("Items: {{#each items}}[{{n}}]{{/each}} done", scope, "")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "Items: [a][b] done" {
		t.Errorf("Render() = %q", out)
	}
}

func TestRender_EachEmptyUsesEmptyText(t *testing.T) {
	out, err := Render("{{#each items}}{{n}}{{/each}}", Scope{"items": []Scope{}}, "nothing here")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "nothing here" {
		t.Errorf("Render() = %q, want empty_text", out)
	}
}

func TestRender_UnknownDirectiveErrors(t *testing.T) {
	_, err := Render("{{#if x}}y{{/if}}", Scope{}, "")
	if err == nil {
		t.Fatal("expected error for unsupported directive")
	}
}

func TestRender_NestedEachRejected(t *testing.T) {
	scope := Scope{"outer": []Scope{{"inner": []Scope{}}}}
	_, err := Render("{{#each outer}}{{#each inner}}x{{/each}}{{/each}}", scope, "")
	if err == nil {
		t.Fatal("expected error for nested #each")
	}
}
