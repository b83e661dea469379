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

package ncnormutil

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eurec4a/ncnorm"
	"github.com/eurec4a/ncnorm/archive"
	"github.com/eurec4a/ncnorm/axbt"
	"github.com/eurec4a/ncnorm/ncio"
	"github.com/eurec4a/ncnorm/products"
	"github.com/sirupsen/logrus"
)

// FailurePolicy decides what a batch does when one input fails.
type FailurePolicy int

const (
	// FailFast stops the batch at the first failure.
	FailFast FailurePolicy = iota
	// SkipAndContinue records the failure and moves on.
	SkipAndContinue
)

// ParsePolicy parses "failfast" or "skip".
func ParsePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(s) {
	case "", "failfast", "fail-fast":
		return FailFast, nil
	case "skip", "skipandcontinue", "skip-and-continue":
		return SkipAndContinue, nil
	}
	return FailFast, fmt.Errorf("ncnorm: invalid failure policy %q; use failfast or skip", s)
}

func (p FailurePolicy) String() string {
	if p == SkipAndContinue {
		return "skip"
	}
	return "failfast"
}

// Report lists the outcome of a batch.
type Report struct {
	// Written holds the locations of all files written.
	Written []string
	// Failed maps each failed input (a file, a date or "all") to its
	// error.
	Failed map[string]error
}

// Batch normalizes the input files of one product and writes the
// results to Store.
type Batch struct {
	Product *products.Product
	Store   archive.Store
	Policy  FailurePolicy

	// InputDir is the directory the product's input patterns and
	// member templates are relative to.
	InputDir string

	// Now is the clock used for creation dates. It defaults to
	// time.Now.
	Now func() time.Time
	Log logrus.FieldLogger
}

func (b Batch) withDefaults() Batch {
	if b.InputDir == "" {
		b.InputDir = "."
	}
	if b.Now == nil {
		b.Now = time.Now
	}
	if b.Log == nil {
		b.Log = logrus.StandardLogger()
	}
	return b
}

// job is one group of input files normalized together.
type job struct {
	key   string
	files []string
	date  time.Time
}

// Run normalizes the product's inputs. If inputs is empty, the
// product's input patterns are used. Inputs are glob patterns, local
// files, or http(s) or bucket URLs. The returned error is non-nil if
// the batch stopped early.
func (b Batch) Run(ctx context.Context, inputs []string) (*Report, error) {
	b = b.withDefaults()
	p := b.Product
	normalizers := make([]*ncnorm.Normalizer, len(p.Specs))
	for i, s := range p.Specs {
		n, err := ncnorm.NewNormalizer(s)
		if err != nil {
			return nil, fmt.Errorf("ncnorm: product %s: %w", p.Name, err)
		}
		n.Now = b.Now
		n.Log = b.Log
		normalizers[i] = n
	}

	jobs, err := b.jobs(inputs)
	if err != nil {
		return nil, err
	}
	report := &Report{Failed: make(map[string]error)}
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log := b.Log.WithFields(logrus.Fields{"product": p.Name, "input": j.key})
		written, err := b.process(ctx, j, normalizers)
		report.Written = append(report.Written, written...)
		if err != nil {
			err = fmt.Errorf("%s: %w", j.key, err)
			if b.Policy == FailFast {
				return report, err
			}
			log.WithError(err).Error("skipping input")
			report.Failed[j.key] = err
		}
	}
	return report, nil
}

// jobs groups the inputs according to the product's grouping.
func (b Batch) jobs(inputs []string) ([]job, error) {
	p := b.Product
	if p.Grouping() == products.ByDate {
		if len(inputs) > 0 {
			return nil, fmt.Errorf("ncnorm: product %s finds its member files by date in the input directory; input files cannot be given", p.Name)
		}
		var jobs []job
		for _, d := range p.Dates {
			date, err := time.Parse(products.DateLayout, d)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job{key: date.Format(archive.DateFormat), date: date})
		}
		return jobs, nil
	}

	if len(inputs) == 0 {
		for _, pattern := range p.Inputs {
			inputs = append(inputs, filepath.Join(b.InputDir, pattern))
		}
	}
	files, err := expandInputs(inputs)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("ncnorm: no input files for product %s match %v", p.Name, inputs)
	}
	if p.Grouping() == products.All {
		return []job{{key: "all", files: files}}, nil
	}
	jobs := make([]job, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, job{key: f, files: []string{f}})
	}
	return jobs, nil
}

// expandInputs expands local glob patterns and returns the sorted,
// de-duplicated file list. Remote inputs are passed through.
func expandInputs(inputs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, in := range inputs {
		matches := []string{in}
		if !isRemote(in) {
			var err error
			if matches, err = filepath.Glob(in); err != nil {
				return nil, fmt.Errorf("ncnorm: input pattern %s: %v", in, err)
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func isRemote(path string) bool {
	return archive.IsBlob(path) || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// output is a normalized dataset waiting to be written.
type output = ncnorm.Normalized

// process normalizes one job. All outputs of the job are computed before
// any is written, so a job that fails to normalize writes nothing.
func (b Batch) process(ctx context.Context, j job, normalizers []*ncnorm.Normalizer) ([]string, error) {
	p := b.Product
	var outs []*output
	var err error
	switch {
	case p.Grouping() == products.ByDate:
		outs, err = b.processDate(j, normalizers)
	case p.AXBT != nil:
		outs, err = b.processAXBT(ctx, j, normalizers)
	default:
		var ds *ncnorm.Dataset
		if ds, err = b.readAll(ctx, j.files); err != nil {
			return nil, err
		}
		if j.date.IsZero() && p.DatePattern != "" {
			if j.date, err = p.FileDate(j.files[0]); err != nil {
				return nil, err
			}
		}
		outs, err = normalizeAll(normalizers, ds, ncnorm.TimeContext{Date: j.date, Source: j.files[0]})
	}
	if err != nil {
		return nil, err
	}
	return b.write(ctx, outs)
}

// processDate merges the members of one date.
func (b Batch) processDate(j job, normalizers []*ncnorm.Normalizer) ([]*output, error) {
	p := b.Product
	var members []*ncnorm.Dataset
	var source string
	for _, m := range p.Members {
		candidates := make([]string, len(m.Files))
		for i, f := range m.Files {
			candidates[i] = archive.Expand(filepath.Join(b.InputDir, f), j.date)
		}
		c := archive.FirstExisting(candidates)
		if !c.Found {
			return nil, fmt.Errorf("no %s file among %v", m.Name, candidates)
		}
		if source == "" {
			source = c.Path
		}
		ds, err := ncio.Read(c.Path)
		if err != nil {
			return nil, err
		}
		if err := m.Prepare(ds); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Path, err)
		}
		members = append(members, ds)
	}
	merged, err := ncnorm.Merge(members...)
	if err != nil {
		return nil, err
	}
	return normalizeAll(normalizers, merged, ncnorm.TimeContext{Date: j.date, Source: source})
}

func normalizeAll(normalizers []*ncnorm.Normalizer, ds *ncnorm.Dataset, tc ncnorm.TimeContext) ([]*output, error) {
	outs := make([]*output, 0, len(normalizers))
	for _, n := range normalizers {
		o, err := n.Normalize(ds, tc)
		if err != nil {
			return nil, err
		}
		outs = append(outs, o)
	}
	return outs, nil
}

// processAXBT splits the joined launches into Level_2 profiles and grids
// the normalized profiles for Level_3.
func (b Batch) processAXBT(ctx context.Context, j job, normalizers []*ncnorm.Normalizer) ([]*output, error) {
	p := b.Product
	cfg := p.AXBT.WithDefaults()
	ds, err := b.readAll(ctx, j.files)
	if err != nil {
		return nil, err
	}
	profiles, err := axbt.Split(ds, cfg)
	if err != nil {
		return nil, err
	}
	var l2, l3 *ncnorm.Normalizer
	for i, s := range p.Specs {
		switch s.Tier {
		case p.Level2().Tier:
			l2 = normalizers[i]
		case p.Level3().Tier:
			l3 = normalizers[i]
		}
	}
	var outs []*output
	var normalized []*ncnorm.Dataset
	for _, prof := range profiles {
		o, err := l2.Normalize(prof, ncnorm.TimeContext{Source: j.files[0]})
		if err != nil {
			return nil, err
		}
		outs = append(outs, o)
		normalized = append(normalized, o.Dataset)
	}
	grid, err := cfg.Grid()
	if err != nil {
		return nil, err
	}
	gridded, err := axbt.Interpolate(normalized, p.Level2().Target(cfg.Temperature), p.Level2().Target(cfg.Depth), grid)
	if err != nil {
		return nil, err
	}
	o, err := l3.Normalize(gridded, ncnorm.TimeContext{Source: j.files[0]})
	if err != nil {
		return nil, err
	}
	return append(outs, o), nil
}

// readAll reads files and joins them along time if there is more than
// one.
func (b Batch) readAll(ctx context.Context, files []string) (*ncnorm.Dataset, error) {
	var dss []*ncnorm.Dataset
	for _, f := range files {
		local, err := archive.Fetch(ctx, f)
		if err != nil {
			return nil, err
		}
		ds, err := ncio.Read(local)
		if err != nil {
			return nil, err
		}
		b.Log.WithFields(logrus.Fields{"file": f, "variables": len(ds.Vars)}).Debug("read input")
		dss = append(dss, ds)
	}
	if len(dss) == 1 {
		return dss[0], nil
	}
	return ncnorm.Concat(dss...)
}

func (b Batch) write(ctx context.Context, outs []*output) ([]string, error) {
	var written []string
	for _, o := range outs {
		o := o
		err := b.Store.Put(ctx, o.Tier, o.Filename, func(w io.Writer) error {
			return ncio.Write(w, o.Dataset, o.Encoding)
		})
		if err != nil {
			return written, err
		}
		loc := b.Store.Location(o.Tier, o.Filename)
		b.Log.WithFields(logrus.Fields{"product": b.Product.Name, "tier": o.Tier}).Info("wrote " + loc)
		written = append(written, loc)
	}
	return written, nil
}
