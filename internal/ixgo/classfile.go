// Copyright 2024 The kiln Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ixgo registers the recipe classfile and the packages scripted
// recipes may import with the Go+ interpreter.
package ixgo

import (
	"github.com/goplus/ixgo/xgobuild"
	"github.com/goplus/mod/modfile"

	_ "github.com/goplus/kiln/internal/ixgo/pkg/github.com/goplus/kiln/recipe"
	_ "github.com/goplus/kiln/internal/ixgo/pkg/github.com/goplus/kiln/x/autotools"
	_ "github.com/goplus/kiln/internal/ixgo/pkg/github.com/goplus/kiln/x/cmake"
	_ "github.com/goplus/kiln/internal/ixgo/pkg/github.com/qiniu/x/gsh"
	_ "github.com/goplus/kiln/internal/ixgo/pkg/golang.org/x/mod/semver"
)

// RecipeExt is the file suffix of scripted recipes.
const RecipeExt = "_recipe.gox"

func init() {
	xgobuild.RegisterProject(&modfile.Project{
		Ext:   RecipeExt,
		Class: "RecipeApp",
		PkgPaths: []string{
			"github.com/goplus/kiln/recipe",
		},
		Import: []*modfile.Import{
			{
				Name: "semver",
				Path: "golang.org/x/mod/semver",
			},
			{
				Name: "cmake",
				Path: "github.com/goplus/kiln/x/cmake",
			},
			{
				Name: "autotools",
				Path: "github.com/goplus/kiln/x/autotools",
			},
		},
	})
}
