/*
Copyright © 2026 the locisol authors.
This file is part of locisol.

locisol is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

locisol is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with locisol.  If not, see <http://www.gnu.org/licenses/>.
*/

package locisol

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/ctessum/requestcache"

	"github.com/srpankratyev/GIS-Portfolio/internal/hash"
)

// CacheConfig configures a CachedSolver.
type CacheConfig struct {
	// MemoryEntries is the number of results kept in memory.
	// Zero disables the memory cache.
	MemoryEntries int

	// Dir, if not empty, is a directory where results are stored so that
	// an interrupted run can be resumed.
	Dir string

	// Tag distinguishes results computed with different rasters or
	// solver settings. It becomes part of every cache key.
	Tag string

	// Workers is the number of concurrent solver calls the cache makes.
	// Callers beyond Workers wait for a free slot; a caller whose context
	// ends while waiting returns the context error.
	Workers int
}

// CachedSolver wraps a PathSolver so that identical requests are solved
// only once. Failed requests are not cached.
//
// Requests are not deduplicated while in flight: requestcache.Deduplicate
// never releases the key of a failed request, so a later identical
// request would block forever. Each point is solved once per run anyway.
type CachedSolver struct {
	solver PathSolver
	cache  *requestcache.Cache
	tag    string
}

type solveRequest struct {
	start GridPoint
	ends  []GridPoint
	r     *CostRaster
}

// NewCachedSolver returns a caching wrapper around s.
func NewCachedSolver(s PathSolver, cfg CacheConfig) (*CachedSolver, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	c := &CachedSolver{solver: s, tag: cfg.Tag}
	var funcs []requestcache.CacheFunc
	if cfg.MemoryEntries > 0 {
		funcs = append(funcs, requestcache.Memory(cfg.MemoryEntries))
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("locisol: creating solver cache directory: %w", err)
		}
		funcs = append(funcs, requestcache.Disk(cfg.Dir, marshalPaths, unmarshalPaths))
	}
	c.cache = requestcache.NewCache(c.process, cfg.Workers, funcs...)
	return c, nil
}

func (c *CachedSolver) process(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*solveRequest)
	return c.solver.SolveOneToMany(ctx, req.start, req.ends, req.r)
}

// SolveOneToMany implements PathSolver.
func (c *CachedSolver) SolveOneToMany(ctx context.Context, start GridPoint, ends []GridPoint, r *CostRaster) ([]PathCost, error) {
	endIDs := make([]int, len(ends))
	for i, e := range ends {
		endIDs[i] = e.ID
	}
	key := hash.Key(c.tag, start.ID, endIDs)
	req := c.cache.NewRequest(ctx, &solveRequest{start: start, ends: ends, r: r}, key)

	// Result blocks until a processor is free, so wait for it separately
	// to return as soon as ctx is done. The request itself carries ctx, so
	// the wrapped solver sees the cancellation once it gets the request.
	type result struct {
		v   interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := req.Result()
		done <- result{v, err}
	}()
	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}
	paths := res.v.([]PathCost)
	return append([]PathCost(nil), paths...), nil
}

// Requests returns the number of requests received by each cache layer,
// followed by the number received by the wrapped solver.
func (c *CachedSolver) Requests() []int { return c.cache.Requests() }

// marshalPaths is given a pointer to the cached result.
func marshalPaths(v interface{}) ([]byte, error) {
	if p, ok := v.(*interface{}); ok {
		v = *p
	}
	paths, ok := v.([]PathCost)
	if !ok {
		return nil, fmt.Errorf("locisol: cannot cache %T", v)
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(paths); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func unmarshalPaths(b []byte) (interface{}, error) {
	var paths []PathCost
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&paths); err != nil {
		return nil, err
	}
	return paths, nil
}
