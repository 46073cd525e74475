package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type openAPIOperation struct {
	OperationID string               `yaml:"operationId"`
	Responses   map[string]yaml.Node `yaml:"responses"`
}

type openAPIDocument struct {
	Servers []struct {
		URL string `yaml:"url"`
	} `yaml:"servers"`
	Paths map[string]map[string]yaml.Node `yaml:"paths"`
}

var openAPIMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// routeSet is a set of "METHOD /path" keys.
type routeSet map[string]struct{}

func (s routeSet) add(method, path string) {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	s[method+" "+path] = struct{}{}
}

// minus lists the keys of s that are missing from other, sorted.
func (s routeSet) minus(other routeSet) []string {
	var out []string
	for k := range s {
		if _, ok := other[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func loadOpenAPI(t *testing.T) (openAPIDocument, map[string]openAPIOperation) {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "api", "openapi.yaml")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read openapi document %q: %v", path, err)
	}
	var doc openAPIDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		t.Fatalf("parse openapi document %q: %v", path, err)
	}

	prefix := "/api"
	if len(doc.Servers) > 0 && doc.Servers[0].URL != "" {
		prefix = strings.TrimSuffix(doc.Servers[0].URL, "/")
	}

	ops := make(map[string]openAPIOperation)
	for p, item := range doc.Paths {
		for _, method := range openAPIMethods {
			node, ok := item[strings.ToLower(method)]
			if !ok {
				continue
			}
			var op openAPIOperation
			if err := node.Decode(&op); err != nil {
				t.Fatalf("decode %s %s: %v", method, p, err)
			}
			ops[method+" "+prefix+p] = op
		}
	}
	return doc, ops
}

func routerRoutes(t *testing.T) routeSet {
	t.Helper()

	mux, ok := NewHandler(zerolog.Nop(), Deps{}).Router().(*chi.Mux)
	if !ok {
		t.Fatal("expected Handler.Router to return a *chi.Mux")
	}

	out := routeSet{}
	walk := func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if strings.HasPrefix(route, "/api/") {
			out.add(method, route)
		}
		return nil
	}
	if err := chi.Walk(mux, walk); err != nil {
		t.Fatalf("walk chi router: %v", err)
	}
	return out
}

func TestOpenAPIDoesNotDriftFromRouter(t *testing.T) {
	_, ops := loadOpenAPI(t)

	documented := routeSet{}
	for key := range ops {
		method, path, _ := strings.Cut(key, " ")
		documented.add(method, path)
	}
	registered := routerRoutes(t)

	var problems []string
	for _, k := range documented.minus(registered) {
		problems = append(problems, "documented but not routed: "+k)
	}
	for _, k := range registered.minus(documented) {
		problems = append(problems, "routed but not documented: "+k)
	}
	if len(problems) > 0 {
		t.Fatalf("OpenAPI drift detected. Update api/openapi.yaml or the router.\n  %s", strings.Join(problems, "\n  "))
	}
}

func TestOpenAPIOperationsAreComplete(t *testing.T) {
	_, ops := loadOpenAPI(t)

	seen := make(map[string]string, len(ops))
	for key, op := range ops {
		if op.OperationID == "" {
			t.Errorf("%s: missing operationId", key)
		} else if prev, dup := seen[op.OperationID]; dup {
			t.Errorf("%s: operationId %q already used by %s", key, op.OperationID, prev)
		} else {
			seen[op.OperationID] = key
		}

		success := false
		for code := range op.Responses {
			if strings.HasPrefix(code, "2") {
				success = true
			}
		}
		if !success {
			t.Errorf("%s: no 2xx response documented", key)
		}
	}
}
