// export by github.com/goplus/ixgo/cmd/qexp

package recipe

import (
	q "github.com/goplus/kiln/recipe"

	"go/constant"
	"reflect"

	"github.com/goplus/ixgo"
)

func init() {
	ixgo.RegisterPackage(&ixgo.Package{
		Name: "recipe",
		Path: "github.com/goplus/kiln/recipe",
		Deps: map[string]string{
			"context":                "context",
			"errors":                 "errors",
			"fmt":                    "fmt",
			"github.com/qiniu/x/gsh": "gsh",
			"io":                     "io",
			"os":                     "os",
			"os/exec":                "exec",
			"path/filepath":          "filepath",
			"slices":                 "slices",
			"sort":                   "sort",
			"strings":                "strings",
		},
		Interfaces: map[string]reflect.Type{
			"Impl": reflect.TypeOf((*q.Impl)(nil)).Elem(),
		},
		NamedTypes: map[string]reflect.Type{
			"ArchiveSource":    reflect.TypeOf((*q.ArchiveSource)(nil)).Elem(),
			"ConfigureContext": reflect.TypeOf((*q.ConfigureContext)(nil)).Elem(),
			"Definition":       reflect.TypeOf((*q.Definition)(nil)).Elem(),
			"Export":           reflect.TypeOf((*q.Export)(nil)).Elem(),
			"GitSource":        reflect.TypeOf((*q.GitSource)(nil)).Elem(),
			"Kind":             reflect.TypeOf((*q.Kind)(nil)).Elem(),
			"Metadata":         reflect.TypeOf((*q.Metadata)(nil)).Elem(),
			"OptionDecl":       reflect.TypeOf((*q.OptionDecl)(nil)).Elem(),
			"OptionKind":       reflect.TypeOf((*q.OptionKind)(nil)).Elem(),
			"Options":          reflect.TypeOf((*q.Options)(nil)).Elem(),
			"Override":         reflect.TypeOf((*q.Override)(nil)).Elem(),
			"PackageInfo":      reflect.TypeOf((*q.PackageInfo)(nil)).Elem(),
			"RecipeApp":        reflect.TypeOf((*q.RecipeApp)(nil)).Elem(),
			"Ref":              reflect.TypeOf((*q.Ref)(nil)).Elem(),
			"Requirement":      reflect.TypeOf((*q.Requirement)(nil)).Elem(),
			"Runner":           reflect.TypeOf((*q.Runner)(nil)).Elem(),
			"SourceSpec":       reflect.TypeOf((*q.SourceSpec)(nil)).Elem(),
			"Stage":            reflect.TypeOf((*q.Stage)(nil)).Elem(),
			"StageContext":     reflect.TypeOf((*q.StageContext)(nil)).Elem(),
			"StageSet":         reflect.TypeOf((*q.StageSet)(nil)).Elem(),
		},
		AliasTypes: map[string]reflect.Type{},
		Vars: map[string]reflect.Value{
			"Lifecycle": reflect.ValueOf(&q.Lifecycle),
		},
		Funcs: map[string]reflect.Value{
			"DefaultPackageInfo":  reflect.ValueOf(q.DefaultPackageInfo),
			"Gopt_RecipeApp_Main": reflect.ValueOf(q.Gopt_RecipeApp_Main),
			"MustParseRef":        reflect.ValueOf(q.MustParseRef),
			"Normalize":           reflect.ValueOf(q.Normalize),
			"ParseKind":           reflect.ValueOf(q.ParseKind),
			"ParseOptionKind":     reflect.ValueOf(q.ParseOptionKind),
			"ParseOverride":       reflect.ValueOf(q.ParseOverride),
			"ParseRef":            reflect.ValueOf(q.ParseRef),
			"ParseStage":          reflect.ValueOf(q.ParseStage),
			"StagesOf":            reflect.ValueOf(q.StagesOf),
		},
		TypedConsts: map[string]ixgo.TypedConst{
			"Bool":                   {reflect.TypeOf(q.Bool), constant.MakeInt64(int64(q.Bool))},
			"Enum":                   {reflect.TypeOf(q.Enum), constant.MakeInt64(int64(q.Enum))},
			"Runtime":                {reflect.TypeOf(q.Runtime), constant.MakeInt64(int64(q.Runtime))},
			"StageBuild":             {reflect.TypeOf(q.StageBuild), constant.MakeInt64(int64(q.StageBuild))},
			"StageBuildRequirements": {reflect.TypeOf(q.StageBuildRequirements), constant.MakeInt64(int64(q.StageBuildRequirements))},
			"StageConfigure":         {reflect.TypeOf(q.StageConfigure), constant.MakeInt64(int64(q.StageConfigure))},
			"StageGenerate":          {reflect.TypeOf(q.StageGenerate), constant.MakeInt64(int64(q.StageGenerate))},
			"StagePackage":           {reflect.TypeOf(q.StagePackage), constant.MakeInt64(int64(q.StagePackage))},
			"StagePackageInfo":       {reflect.TypeOf(q.StagePackageInfo), constant.MakeInt64(int64(q.StagePackageInfo))},
			"StageRequirements":      {reflect.TypeOf(q.StageRequirements), constant.MakeInt64(int64(q.StageRequirements))},
			"StageSource":            {reflect.TypeOf(q.StageSource), constant.MakeInt64(int64(q.StageSource))},
			"String":                 {reflect.TypeOf(q.String), constant.MakeInt64(int64(q.String))},
			"Tool":                   {reflect.TypeOf(q.Tool), constant.MakeInt64(int64(q.Tool))},
		},
		UntypedConsts: map[string]ixgo.UntypedConst{
			"GopPackage": {"untyped bool", constant.MakeBool(bool(q.GopPackage))},
		},
	})
}
