/*
Copyright © 2020 the ncnorm authors.
This file is part of ncnorm.

ncnorm is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncnorm is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncnorm.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncnorm

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
)

// DerivationFunctions are the functions available to derived-variable
// expressions:
//
// 'qair(p, t, rh)' returns the water vapour mixing ratio in g/kg from
// pressure in hPa, air temperature in °C and relative humidity in %.
//
// 'exp(x)', 'log(x)', 'sqrt(x)' and 'abs(x)' are the usual math functions.
var DerivationFunctions = map[string]govaluate.ExpressionFunction{
	"qair": func(args ...interface{}) (interface{}, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("ncnorm: got %d arguments for function 'qair', but needs 3", len(args))
		}
		p, t, rh, err := float3(args)
		if err != nil {
			return nil, err
		}
		return MixingRatio(p, t, rh), nil
	},
	"exp":  unary("exp", math.Exp),
	"log":  unary("log", math.Log),
	"sqrt": unary("sqrt", math.Sqrt),
	"abs":  unary("abs", math.Abs),
}

// MixingRatio returns the water vapour mixing ratio [g/kg] for pressure p
// [hPa], temperature t [°C] and relative humidity rh [%], using the
// Buck saturation vapour pressure with its pressure enhancement factor.
func MixingRatio(p, t, rh float64) float64 {
	es := 6.112 * math.Exp(17.502*t/(t+241.0)) * (1.0007 + 3.46e-6*p) * rh / 100
	return es * 622 / (p - 0.378*es)
}

func unary(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("ncnorm: got %d arguments for function '%s', but needs 1", len(args), name)
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("ncnorm: function '%s' needs a numeric argument, got %T", name, args[0])
		}
		return f(x), nil
	}
}

func float3(args []interface{}) (a, b, c float64, err error) {
	var o [3]float64
	for i, arg := range args {
		f, ok := arg.(float64)
		if !ok {
			return 0, 0, 0, fmt.Errorf("ncnorm: argument %d is %T, not a number", i, arg)
		}
		o[i] = f
	}
	return o[0], o[1], o[2], nil
}

// derivation is a compiled DerivedRule.
type derivation struct {
	rule DerivedRule
	expr *govaluate.EvaluableExpression
	vars []string
}

func compileDerivations(rules []DerivedRule) ([]derivation, error) {
	o := make([]derivation, len(rules))
	for i, r := range rules {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(r.Expression, DerivationFunctions)
		if err != nil {
			return nil, &SpecValidationError{Field: fmt.Sprintf("derive[%d].expression", i), Reason: err.Error()}
		}
		vars := uniqueStrings(expr.Vars())
		if len(vars) == 0 {
			return nil, &SpecValidationError{Field: fmt.Sprintf("derive[%d].expression", i),
				Reason: "expression does not reference any variables"}
		}
		o[i] = derivation{rule: r, expr: expr, vars: vars}
	}
	return o, nil
}

// apply evaluates the derivation element-wise over ds. All referenced
// variables must have the same dimensions.
func (d derivation) apply(ds *Dataset) (*Variable, error) {
	if ds.HasVar(d.rule.Name) {
		return nil, &NameCollisionError{Name: d.rule.Name, Reason: "derived variable already exists in dataset"}
	}
	inputs := make([]*Variable, len(d.vars))
	for i, name := range d.vars {
		v := ds.Var(name)
		if v == nil {
			return nil, &MissingVariableError{Name: name}
		}
		if i > 0 && !sameDims(v.Dims, inputs[0].Dims) {
			return nil, fmt.Errorf("ncnorm: derived variable %s: %s has dimensions %v but %s has %v",
				d.rule.Name, name, v.Dims, inputs[0].Name, inputs[0].Dims)
		}
		inputs[i] = v
	}
	out := &Variable{
		Name:  d.rule.Name,
		Dims:  append([]string(nil), inputs[0].Dims...),
		Data:  make([]float64, len(inputs[0].Data)),
		Attrs: make(Attributes, len(d.rule.Attrs)),
	}
	for k, v := range d.rule.Attrs {
		out.Attrs[k] = v
	}
	params := make(map[string]interface{}, len(inputs))
	for j := range out.Data {
		for _, v := range inputs {
			params[v.Name] = v.Data[j]
		}
		r, err := d.expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("ncnorm: evaluating %s: %v", d.rule.Name, err)
		}
		switch rv := r.(type) {
		case float64:
			out.Data[j] = rv
		case bool:
			if rv {
				out.Data[j] = 1
			}
		default:
			return nil, fmt.Errorf("ncnorm: expression for %s returned %T, not a number", d.rule.Name, r)
		}
	}
	return out, nil
}

func sameDims(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// uniqueStrings removes duplicates from s, keeping first occurrences.
func uniqueStrings(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]struct{})
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = struct{}{}
		}
	}
	return result
}
