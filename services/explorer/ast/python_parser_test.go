// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pythonTestSource = `"""Module docstring for test_module."""

from typing import Optional, List
import os
import collections.abc as cabc
from . import sibling
from ..utils import helper as h, other
from .models import *

class Base:
    pass

@decorate(1)
class User(Base, metaclass=Meta):
    """A user in the system.

    Longer text.
    """

    def validate(self) -> bool:
        """Validate the user."""
        return self.check()

    @classmethod
    def from_dict(cls, data: dict) -> "User":
        return cls.build(**data)

    @property
    def display_name(self) -> str:
        return self.name

    @display_name.setter
    def display_name(self, value):
        pass

    @functools.cached_property
    def cached(self):
        return compute()

    class Meta:
        def inner(self):
            self.validate()

async def fetch_user(user_id: int, *, timeout: float = 1.5) -> User:
    '''Fetch a user by ID.'''
    import json
    return helper_function(user_id)

def helper_function(a, b=2, /, c: int = 3, *args, d, **kwargs) -> None:
    os.path.join(a)

helper_function(1)
`

func parseSource(t *testing.T, src string) *ModuleRecord {
	t.Helper()
	record, err := NewPythonParser().Parse(context.Background(), []byte(src), "pkg/mod.py", "pkg.mod")
	require.NoError(t, err)
	require.NotNil(t, record)
	return record
}

func findDef(defs []*Definition, path string) *Definition {
	for _, d := range defs {
		if d.LocalPath() == path {
			return d
		}
		if found := findDef(d.Children, path); found != nil {
			return found
		}
	}
	return nil
}

func TestPythonParser_Parse_EmptyFile(t *testing.T) {
	record := parseSource(t, "")
	assert.Equal(t, "pkg.mod", record.Module)
	assert.Empty(t, record.Definitions)
	assert.Empty(t, record.Imports)
	assert.Empty(t, record.Calls)
	assert.False(t, record.IsPackage)
	assert.Len(t, record.Hash, 64)
}

func TestPythonParser_Parse_PackageFile(t *testing.T) {
	record, err := NewPythonParser().Parse(context.Background(), []byte("x = 1\n"), "pkg/__init__.py", "pkg")
	require.NoError(t, err)
	assert.True(t, record.IsPackage)
}

func TestPythonParser_Definitions(t *testing.T) {
	record := parseSource(t, pythonTestSource)

	assert.Equal(t, "Module docstring for test_module.", record.Docstring)

	require.Len(t, record.Definitions, 4)
	assert.Equal(t, "Base", record.Definitions[0].Name)
	assert.Equal(t, "User", record.Definitions[1].Name)
	assert.Equal(t, "fetch_user", record.Definitions[2].Name)
	assert.Equal(t, "helper_function", record.Definitions[3].Name)

	t.Run("class", func(t *testing.T) {
		user := findDef(record.Definitions, "User")
		require.NotNil(t, user)
		assert.Equal(t, DefinitionClass, user.Kind)
		assert.Equal(t, []string{"Base"}, user.Bases)
		assert.Equal(t, []string{"decorate"}, user.Decorators)
		assert.Equal(t, "A user in the system.\n\nLonger text.", user.Docstring)
		assert.Len(t, user.Children, 6)
	})

	t.Run("method", func(t *testing.T) {
		validate := findDef(record.Definitions, "User.validate")
		require.NotNil(t, validate)
		assert.Equal(t, DefinitionMethod, validate.Kind)
		assert.Equal(t, "bool", validate.ReturnType)
		assert.Equal(t, "Validate the user.", validate.Docstring)
		assert.Equal(t, []string{"User", "validate"}, validate.Path)
	})

	t.Run("classmethod stays a method", func(t *testing.T) {
		fromDict := findDef(record.Definitions, "User.from_dict")
		require.NotNil(t, fromDict)
		assert.Equal(t, DefinitionMethod, fromDict.Kind)
		assert.Equal(t, `"User"`, fromDict.ReturnType)
		assert.Equal(t, []string{"classmethod"}, fromDict.Decorators)
	})

	t.Run("properties", func(t *testing.T) {
		var props []*Definition
		user := findDef(record.Definitions, "User")
		for _, c := range user.Children {
			if c.Kind == DefinitionProperty {
				props = append(props, c)
			}
		}
		require.Len(t, props, 3)
		assert.Equal(t, "display_name", props[0].Name)
		assert.Equal(t, "display_name", props[1].Name)
		assert.Equal(t, []string{"display_name.setter"}, props[1].Decorators)
		assert.Equal(t, "cached", props[2].Name)
	})

	t.Run("nested class", func(t *testing.T) {
		inner := findDef(record.Definitions, "User.Meta.inner")
		require.NotNil(t, inner)
		assert.Equal(t, DefinitionMethod, inner.Kind)
	})

	t.Run("async function", func(t *testing.T) {
		fetch := findDef(record.Definitions, "fetch_user")
		require.NotNil(t, fetch)
		assert.Equal(t, DefinitionFunction, fetch.Kind)
		assert.True(t, fetch.IsAsync)
		assert.Equal(t, "User", fetch.ReturnType)
		assert.Equal(t, "Fetch a user by ID.", fetch.Docstring)
	})
}

func TestPythonParser_ParamKinds(t *testing.T) {
	record := parseSource(t, pythonTestSource)

	helper := findDef(record.Definitions, "helper_function")
	require.NotNil(t, helper)

	want := []Param{
		{Name: "a", Kind: ParamPositionalOnly},
		{Name: "b", Kind: ParamPositionalOnly, HasDefault: true, Default: "2"},
		{Name: "c", Kind: ParamPositionalOrKeyword, Annotation: "int", HasDefault: true, Default: "3"},
		{Name: "args", Kind: ParamVarPositional},
		{Name: "d", Kind: ParamKeywordOnly},
		{Name: "kwargs", Kind: ParamVarKeyword},
	}
	assert.Equal(t, want, helper.Params)
	assert.Equal(t, "None", helper.ReturnType)

	fetch := findDef(record.Definitions, "fetch_user")
	require.NotNil(t, fetch)
	assert.Equal(t, []Param{
		{Name: "user_id", Kind: ParamPositionalOrKeyword, Annotation: "int"},
		{Name: "timeout", Kind: ParamKeywordOnly, Annotation: "float", HasDefault: true, Default: "1.5"},
	}, fetch.Params)
}

func TestPythonParser_Imports(t *testing.T) {
	record := parseSource(t, pythonTestSource)

	byModule := make(map[string]ImportStmt)
	for _, imp := range record.Imports {
		byModule[imp.Module+"/"+strings.Repeat(".", imp.Level)] = imp
	}

	typing := byModule["typing/"]
	assert.True(t, typing.IsFrom)
	assert.Equal(t, []ImportedName{{Name: "Optional"}, {Name: "List"}}, typing.Names)

	assert.Contains(t, byModule, "os/")
	assert.Equal(t, "cabc", byModule["collections.abc/"].Alias)

	sibling := byModule["/."]
	assert.Equal(t, 1, sibling.Level)
	assert.Equal(t, []ImportedName{{Name: "sibling"}}, sibling.Names)

	utils := byModule["utils/.."]
	assert.Equal(t, 2, utils.Level)
	assert.Equal(t, []ImportedName{{Name: "helper", Alias: "h"}, {Name: "other"}}, utils.Names)

	models := byModule["models/."]
	assert.True(t, models.IsWildcard)

	// Imports nested in function bodies are collected too.
	assert.Contains(t, byModule, "json/")
	assert.Len(t, record.Imports, 7)
}

func TestPythonParser_CallSites(t *testing.T) {
	record := parseSource(t, pythonTestSource)

	find := func(name string, shape CallShape) *CallSite {
		for i := range record.Calls {
			if record.Calls[i].Name == name && record.Calls[i].Shape == shape {
				return &record.Calls[i]
			}
		}
		return nil
	}

	t.Run("self call inside method", func(t *testing.T) {
		call := find("check", CallSelf)
		require.NotNil(t, call)
		assert.Equal(t, []Scope{{ScopeClass, "User"}, {ScopeFunction, "validate"}}, call.Scope)
		assert.Equal(t, "self", call.Receiver)
	})

	t.Run("cls call", func(t *testing.T) {
		call := find("build", CallCls)
		require.NotNil(t, call)
		assert.Equal(t, []Scope{{ScopeClass, "User"}, {ScopeFunction, "from_dict"}}, call.Scope)
	})

	t.Run("nested class scope", func(t *testing.T) {
		call := find("validate", CallSelf)
		require.NotNil(t, call)
		assert.Equal(t, []Scope{{ScopeClass, "User"}, {ScopeClass, "Meta"}, {ScopeFunction, "inner"}}, call.Scope)
	})

	t.Run("decorator call stays in module scope", func(t *testing.T) {
		call := find("decorate", CallBare)
		require.NotNil(t, call)
		assert.Empty(t, call.Scope)
	})

	t.Run("bare call inside async function", func(t *testing.T) {
		call := find("helper_function", CallBare)
		require.NotNil(t, call)
		assert.Equal(t, []Scope{{ScopeFunction, "fetch_user"}}, call.Scope)
	})

	t.Run("attribute call on other receiver", func(t *testing.T) {
		call := find("join", CallOther)
		require.NotNil(t, call)
		assert.Equal(t, "os.path", call.Receiver)
	})

	t.Run("module level call has empty scope", func(t *testing.T) {
		var moduleLevel []CallSite
		for _, c := range record.Calls {
			if c.Name == "helper_function" && len(c.Scope) == 0 {
				moduleLevel = append(moduleLevel, c)
			}
		}
		require.Len(t, moduleLevel, 1)
		assert.Equal(t, 52, moduleLevel[0].Line)
	})
}

func TestPythonParser_SyntaxError(t *testing.T) {
	src := "def ok():\n    pass\n\ndef broken(:\n    pass\n"
	_, err := NewPythonParser().Parse(context.Background(), []byte(src), "pkg/bad.py", "pkg.bad")
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.True(t, errors.Is(err, ErrParseFailed))
	assert.Equal(t, "pkg/bad.py", parseErr.FilePath)
	assert.Equal(t, 4, parseErr.Line)
	assert.True(t, IsParseError(err))
}

func TestPythonParser_Limits(t *testing.T) {
	t.Run("file too large", func(t *testing.T) {
		parser := NewPythonParser(WithPythonMaxFileSize(10))
		_, err := parser.Parse(context.Background(), []byte("x = 1234567890\n"), "a.py", "a")
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := NewPythonParser().Parse(context.Background(), []byte{0xff, 0xfe, '\n'}, "a.py", "a")
		assert.ErrorIs(t, err, ErrInvalidContent)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewPythonParser().Parse(ctx, []byte("x = 1\n"), "a.py", "a")
		assert.ErrorIs(t, err, ErrContextCanceled)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("call site cap", func(t *testing.T) {
		src := strings.Repeat("f()\n", 50)
		parser := NewPythonParser(WithPythonMaxCallSites(10))
		record, err := parser.Parse(context.Background(), []byte(src), "a.py", "a")
		require.NoError(t, err)
		assert.Len(t, record.Calls, 10)
		assert.True(t, record.CallsLimited)
	})

	t.Run("call site cap not reached", func(t *testing.T) {
		src := strings.Repeat("f()\n", 10) + "x = 1\n"
		parser := NewPythonParser(WithPythonMaxCallSites(10))
		record, err := parser.Parse(context.Background(), []byte(src), "a.py", "a")
		require.NoError(t, err)
		assert.Len(t, record.Calls, 10)
		assert.False(t, record.CallsLimited)
	})
}

func TestPythonParser_Deterministic(t *testing.T) {
	first := parseSource(t, pythonTestSource)
	second := parseSource(t, pythonTestSource)

	first.ParsedAtMilli, second.ParsedAtMilli = 0, 0
	assert.Equal(t, first, second)
}

func TestPythonParser_Concurrent(t *testing.T) {
	parser := NewPythonParser()
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = parser.Parse(context.Background(), []byte(pythonTestSource), "pkg/mod.py", "pkg.mod")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestCleanDocstring(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"triple double", `"""  hello  """`, "hello"},
		{"triple single", `'''hello'''`, "hello"},
		{"single quotes", `'hi'`, "hi"},
		{"raw prefix", `r"""a\b"""`, `a\b`},
		{"dedent", "\"\"\"Title.\n\n    Body line.\n      Indented.\n    \"\"\"", "Title.\n\nBody line.\n  Indented."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanDocstring(tt.raw))
		})
	}
}

func TestIsPropertyDecorator(t *testing.T) {
	for _, name := range []string{"property", "cached_property", "functools.cached_property", "abc.abstractproperty", "x.setter", "x.deleter", "x.getter"} {
		assert.True(t, IsPropertyDecorator(name), name)
	}
	for _, name := range []string{"staticmethod", "classmethod", "setter", "abstractmethod"} {
		assert.False(t, IsPropertyDecorator(name), name)
	}
}
