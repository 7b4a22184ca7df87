// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command explorer maps the structure of an installed Python library
// without importing or executing it.
//
// Usage:
//
//	explorer analyze requests
//	explorer analyze ./src/mypkg --json --out graph.json
//	explorer watch mylib
//	explorer serve
//	explorer snapshot save requests --label before-upgrade
//	explorer snapshot diff <base-id> <target-id> --unified
//
// Example requests against `explorer serve`:
//
//	curl -X POST http://127.0.0.1:8089/v1/explorer/analyze \
//	  -H "Content-Type: application/json" \
//	  -d '{"library": "requests", "max_files": 2000}'
//
//	curl http://127.0.0.1:8089/v1/explorer/snapshots?library=requests
package main

import (
	"context"
	"os"
)

// version is injected with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
