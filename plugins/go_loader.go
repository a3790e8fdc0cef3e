package plugins

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/kingrea/focus/sdk"
)

const factoryFuncName = "focusNewModule"

var (
	// ErrNoModuleType is returned when an assembly declares no exported
	// concrete type implementing sdk.Module.
	ErrNoModuleType = errors.New("no exported type implements sdk.Module")
	// ErrAmbiguousModuleType is returned when more than one type qualifies.
	ErrAmbiguousModuleType = errors.New("more than one exported type implements sdk.Module")
	errUnitClosed          = errors.New("plugin: unit is closed")
)

// arity is a method's parameter and result count.
type arity struct{ params, results int }

// moduleMethods is the sdk.Module method set.
var moduleMethods = map[string]arity{
	"Init":     {1, 1},
	"Settings": {0, 1},
	"Actions":  {0, 1},
	"Validate": {1, 1},
	"Start":    {1, 1},
	"Stop":     {1, 1},
}

// ResolveImplementation parses a Go source file and returns the single
// exported, non-interface type whose methods cover sdk.Module.
func ResolveImplementation(path string) (string, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return "", fmt.Errorf("plugin: %s is empty", path)
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, code, parser.SkipObjectResolution)
	if err != nil {
		return "", fmt.Errorf("plugin: parse %s: %w", path, err)
	}
	var candidates []string
	methods := map[string]map[string]arity{}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || !ts.Name.IsExported() || ts.Assign.IsValid() || ts.TypeParams != nil {
					continue
				}
				if _, iface := ts.Type.(*ast.InterfaceType); iface {
					continue
				}
				candidates = append(candidates, ts.Name.Name)
			}
		case *ast.FuncDecl:
			if d.Recv == nil || len(d.Recv.List) == 0 {
				continue
			}
			recv := receiverType(d.Recv.List[0].Type)
			if recv == "" {
				continue
			}
			if methods[recv] == nil {
				methods[recv] = map[string]arity{}
			}
			methods[recv][d.Name.Name] = arity{fieldCount(d.Type.Params), fieldCount(d.Type.Results)}
		}
	}
	var matches []string
	for _, name := range candidates {
		if coversModule(methods[name]) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
		return "", ErrNoModuleType
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousModuleType, strings.Join(matches, ", "))
	}
}

func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

func fieldCount(fields *ast.FieldList) int {
	if fields == nil {
		return 0
	}
	n := 0
	for _, f := range fields.List {
		if len(f.Names) == 0 {
			n++
			continue
		}
		n += len(f.Names)
	}
	return n
}

func coversModule(methods map[string]arity) bool {
	for name, want := range moduleMethods {
		got, ok := methods[name]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// goUnit is one yaegi interpreter holding one plugin. Once closed and
// unreferenced, the interpreter and every value the plugin allocated are
// left to the garbage collector.
type goUnit struct {
	mu      sync.Mutex
	interp  *interp.Interpreter
	factory reflect.Value
}

// openGoUnit interprets path in a fresh interpreter and prepares a factory
// for typeName.
func openGoUnit(path, typeName string) (*goUnit, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load stdlib symbols: %w", err)
	}
	if err := i.Use(sdk.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load sdk symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	src := fmt.Sprintf("import focussdk %q\n\nfunc %s() focussdk.Module { return new(%s) }\n", sdk.ImportPath, factoryFuncName, typeName)
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("plugin: %s does not implement sdk.Module: %w", typeName, err)
	}
	fn, err := i.Eval(factoryFuncName)
	if err != nil {
		return nil, fmt.Errorf("plugin: resolve factory for %s: %w", typeName, err)
	}
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("plugin: factory for %s is not a function", typeName)
	}
	return &goUnit{interp: i, factory: fn}, nil
}

func (u *goUnit) New() (sdk.Module, error) {
	u.mu.Lock()
	fn := u.factory
	u.mu.Unlock()
	if !fn.IsValid() {
		return nil, errUnitClosed
	}
	results := fn.Call(nil)
	if len(results) != 1 {
		return nil, fmt.Errorf("plugin: factory returned %d values", len(results))
	}
	mod, ok := results[0].Interface().(sdk.Module)
	if !ok || mod == nil {
		return nil, fmt.Errorf("plugin: factory did not return an sdk.Module")
	}
	return mod, nil
}

func (u *goUnit) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.interp = nil
	u.factory = reflect.Value{}
	return nil
}
