package restify

import "strings"

// StageName generates a string such as
// `  => my_stage_name(["ctxVar"]) => ["newCtxVar"]`
// from the inputs StageName(true, "my_stage_name", []string{"ctxVar"}, []string{"newCtxVar"}, false)
func StageName(usesInParam bool, name string, ctxDependencies []string, ctxOutputs []string, returnsAValue bool) string {

	inArrow := "  => "
	if !usesInParam {
		inArrow = ""
	}

	outArrow := " =>"
	if !returnsAValue {
		outArrow = ""
	}

	return inArrow + FuncStr(name, ctxDependencies...) + CtxOutStr(ctxOutputs...) + outArrow
}

// FuncStr generates a string such as
// `my_stage_name(["ctxVar1"], ["ctxVar2"])`
// from the inputs FuncStr("my_stage_name", "ctxVar1", "ctxVar2")
func FuncStr(name string, ctxDependencies ...string) string {
	return name + "(" + ctxList(ctxDependencies) + ")"
}

// CtxOutStr generates a string such as
// ` => ["ctxOutVar1"], ["ctxOutVar2"]`
// from the inputs CtxOutStr("ctxOutVar1", "ctxOutVar2")
func CtxOutStr(ctxOutputs ...string) string {

	if len(ctxOutputs) == 0 {
		return ""
	}
	return " => " + ctxList(ctxOutputs)
}

func ctxList(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = `["` + k + `"]`
	}
	return strings.Join(quoted, ", ")
}
