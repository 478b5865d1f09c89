// Package loader reads recipe files into recipe definitions.
//
// Two formats are supported: declarative HCL recipes (recipe.hcl or
// <name>.hcl) and scripted Go+ recipes (<name>_recipe.gox).
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/kiln/internal/ixgo"
	"github.com/goplus/kiln/recipe"
)

// HCLFile is the conventional file name of a declarative recipe.
const HCLFile = "recipe.hcl"

// Loader loads recipe definitions from files.
type Loader interface {
	Load(path string) (*recipe.Definition, error)
}

type fileLoader struct{}

// New returns a Loader dispatching on the file extension.
func New() Loader {
	return fileLoader{}
}

func (fileLoader) Load(path string) (*recipe.Definition, error) {
	return Load(path)
}

// Load loads the recipe file at path. If path is a directory, the recipe
// file inside it is loaded.
func Load(path string) (*recipe.Definition, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}
	if fi.IsDir() {
		if path, err = FindRecipe(path); err != nil {
			return nil, err
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	switch {
	case strings.HasSuffix(path, ixgo.RecipeExt):
		return loadGox(path)
	case filepath.Ext(path) == ".hcl":
		return loadHCL(path)
	}
	return nil, fmt.Errorf("failed to load recipe %s: unknown recipe format", path)
}

// IsRecipeFile reports whether name looks like a recipe file.
func IsRecipeFile(name string) bool {
	base := filepath.Base(name)
	return base == HCLFile || strings.HasSuffix(base, ixgo.RecipeExt)
}

// FindRecipe returns the single recipe file in dir.
func FindRecipe(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to find recipe: %w", err)
	}
	var found []string
	for _, e := range entries {
		if !e.IsDir() && IsRecipeFile(e.Name()) {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no recipe file in %s", dir)
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("more than one recipe file in %s", dir)
}

// Peek returns the reference a recipe file declares without evaluating its
// stages or scripts.
func Peek(path string) (recipe.Ref, error) {
	switch {
	case strings.HasSuffix(path, ixgo.RecipeExt):
		return peekGox(path)
	case filepath.Ext(path) == ".hcl":
		return peekHCL(path)
	}
	return recipe.Ref{}, fmt.Errorf("failed to read recipe %s: unknown recipe format", path)
}
