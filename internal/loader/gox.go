package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/goplus/ixgo"
	"github.com/goplus/ixgo/xgobuild"
	"github.com/goplus/xgo/ast"
	"github.com/goplus/xgo/parser"
	"github.com/goplus/xgo/token"

	"github.com/goplus/kiln/recipe"
)

// loadGox builds and interprets a scripted recipe, then converts the
// declarations of its RecipeApp into a definition.
func loadGox(path string) (*recipe.Definition, error) {
	ctx := ixgo.NewContext(0)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	source, err := xgobuild.BuildFile(ctx, path, content)
	if err != nil {
		return nil, fmt.Errorf("failed to build recipe %s: %w", path, err)
	}
	pkgs, err := ctx.LoadFile("main.go", source)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe %s: %w", path, err)
	}
	interp, err := ctx.NewInterp(pkgs)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe %s: %w", path, err)
	}
	if err = interp.RunInit(); err != nil {
		return nil, fmt.Errorf("failed to load recipe %s: %w", path, err)
	}

	structName, _, ok := strings.Cut(filepath.Base(path), "_")
	if !ok {
		return nil, fmt.Errorf("failed to load recipe: file name is not valid: %s", path)
	}
	typ, ok := interp.GetType(structName)
	if !ok {
		return nil, fmt.Errorf("failed to load recipe: struct name not found: %s", structName)
	}
	val := reflect.New(typ)
	val.Interface().(interface{ Main() }).Main()

	field := val.Elem().FieldByName("RecipeApp")
	if !field.IsValid() {
		return nil, fmt.Errorf("failed to load recipe %s: %s is not a recipe class", path, structName)
	}
	app := field.Addr().Interface().(*recipe.RecipeApp)
	return app.Definition(path, structName)
}

// peekGox reads the name and version calls of a scripted recipe from its AST.
func peekGox(path string) (recipe.Ref, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseEntry(fset, path, nil, parser.Config{
		ClassKind: xgobuild.ClassKind,
	})
	if err != nil {
		return recipe.Ref{}, err
	}
	var ref recipe.Ref
	ast.Inspect(f, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		c, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		fn, ok := c.Fun.(*ast.Ident)
		if !ok {
			return true
		}
		switch fn.Name {
		case "name", "Name":
			ref.Name, err = stringArg(c, fn.Name)
			return false
		case "version", "Version":
			ref.Version, err = stringArg(c, fn.Name)
			return false
		}
		return true
	})
	if err != nil {
		return recipe.Ref{}, err
	}
	if ref.Name == "" {
		ref.Name, _, _ = strings.Cut(filepath.Base(path), "_")
	}
	return ref, nil
}

// stringArg extracts the first string literal argument of a call.
func stringArg(c *ast.CallExpr, fnName string) (string, error) {
	if len(c.Args) == 0 {
		return "", fmt.Errorf("failed to parse %s from AST: no argument", fnName)
	}
	lit, ok := c.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", fmt.Errorf("failed to parse %s from AST: argument is not a string literal", fnName)
	}
	v := strings.Trim(strings.Trim(lit.Value, `"`), "`")
	if v == "" {
		return "", fmt.Errorf("failed to parse %s from AST: empty argument", fnName)
	}
	return v, nil
}
