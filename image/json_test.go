package image

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/objectir/objectir/vm"
)

func TestExportJSON(t *testing.T) {
	reg := compileFixture(t)

	data, err := ExportJSON(reg)
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}

	text := string(data)
	for _, want := range []string{
		`"Dog.Speak() -> System.String"`,
		`"Main.Run() -> System.Void"`,
		`"super": "Animal"`,
		"ldstr",
		"callvirt",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("export missing %s:\n%s", want, text)
		}
	}
	if strings.Contains(text, "System.Console") {
		t.Error("export carries host builtins")
	}
}

func TestExportJSONRequiresPublished(t *testing.T) {
	if _, err := ExportJSON(vm.NewRegistry()); err == nil {
		t.Error("ExportJSON of an unpublished registry succeeded")
	}
}
