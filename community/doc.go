// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package community searches the platform's own discussion content.
//
// The Searcher interface is what the orchestrator consumes. Index is an
// in-memory bleve implementation used by the command line tool and tests;
// production deployments plug in the platform's own search backend.
//
// Basic usage:
//
//	idx, err := community.NewIndex()
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	err = idx.Add(ctx, posts, links, comments)
//	results, err := idx.Search(ctx, "react hooks", []string{"react", "hooks"}, 5)
package community
