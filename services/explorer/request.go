// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package explorer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/libexplorer/services/explorer/config"
	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

// DefaultMaxFiles is the discovery cap when none is configured.
const DefaultMaxFiles = 5000

// Request describes one analysis run.
//
// Zero caps mean unbounded. A nil TestPathPatterns selects the default
// exclusions; an empty non-nil slice disables exclusion.
type Request struct {
	// Library is a distribution name, import name, or filesystem path.
	Library string `json:"library" validate:"required,max=4096"`

	// TopLevelHints are extra import names to try when Library does not
	// resolve directly.
	TopLevelHints []string `json:"top_level_hints,omitempty" validate:"omitempty,max=64,dive,required"`

	MaxFiles             int `json:"max_files" validate:"gte=0"`
	MaxExternalPerModule int `json:"max_external_per_module" validate:"gte=0"`
	MaxEdges             int `json:"max_edges" validate:"gte=0"`

	TestPathPatterns []string `json:"test_path_patterns,omitempty" validate:"omitempty,dive,required"`

	// Workers is the parse concurrency. 0 uses GOMAXPROCS.
	Workers int `json:"workers" validate:"gte=0,lte=256"`
}

// NewRequest returns a request for library with the default caps.
func NewRequest(library string) Request {
	return Request{
		Library:              library,
		MaxFiles:             DefaultMaxFiles,
		MaxExternalPerModule: graph.DefaultMaxExternalPerModule,
		MaxEdges:             graph.DefaultMaxEdges,
	}
}

// RequestFromConfig returns a request for library with caps from cfg.
func RequestFromConfig(library string, cfg *config.Config) Request {
	req := NewRequest(library)
	if cfg == nil {
		return req
	}
	req.MaxFiles = cfg.Analysis.MaxFiles
	req.MaxExternalPerModule = cfg.Analysis.MaxExternalPerModule
	req.MaxEdges = cfg.Analysis.MaxEdges
	req.Workers = cfg.Analysis.Workers
	req.TestPathPatterns = cfg.Discovery.Exclude
	return req
}

// Limits returns the graph caps of the request.
func (r Request) Limits() graph.Limits {
	return graph.Limits{
		MaxExternalPerModule: r.MaxExternalPerModule,
		MaxEdges:             r.MaxEdges,
	}
}

var requestValidate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the request fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Library) == "" {
		return fmt.Errorf("%w: library must not be empty", ErrInvalidRequest)
	}
	if err := requestValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidRequest, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
