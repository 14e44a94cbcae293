// Package manifest reads the panel list a render run works through and
// expands it into scheduler jobs.
//
// Two layouts are accepted. A single JSON file holds a flat list:
//
//	[{"page": 3, "panel": 2, "variants": 3, "prompt": "..."}]
//
// or the same list as YAML when the file ends in .yaml or .yml:
//
//	- page: 3
//	  panel: 2
//	  variants: 3
//	  prompt: |
//	    ...
//
// A directory holds one page-NNN.json file per page:
//
//	{"page_num": 3, "panels": [{"panel_num": 2, "prompt": "..."}]}
//
// plus an optional cover.json, which is always page 0 and renders as
// cover-panel-N.png.
//
// When a panel has several variants, its selected image (the name without
// the -vN suffix) completes every variant, so a reviewed panel is never
// rendered again.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/renderkit/render"
	"github.com/vinayprograms/renderkit/scheduler"
)

// ErrEmpty is returned when a manifest has no panels.
var ErrEmpty = errors.New("manifest has no panels")

// CoverFile is the page file read as page 0 in a manifest directory.
const CoverFile = "cover.json"

// Entry is one panel to render.
type Entry struct {
	Page     int    `json:"page" yaml:"page"`
	Panel    int    `json:"panel" yaml:"panel"`
	Variants int    `json:"variants,omitempty" yaml:"variants,omitempty"` // 0 or 1 renders a single image
	Prompt   string `json:"prompt" yaml:"prompt"`

	AspectRatio string `json:"aspect_ratio,omitempty" yaml:"aspect_ratio,omitempty"`
	Size        string `json:"size,omitempty" yaml:"size,omitempty"`
}

type pageFile struct {
	PageNum int `json:"page_num"`
	Panels  []struct {
		PanelNum    int    `json:"panel_num"`
		Variants    int    `json:"variants,omitempty"`
		Prompt      string `json:"prompt"`
		AspectRatio string `json:"aspect_ratio,omitempty"`
		Size        string `json:"size,omitempty"`
	} `json:"panels"`
}

// Load reads a manifest file or a directory of page files.
func Load(path string) ([]Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if info.IsDir() {
		entries, err = loadDir(path)
	} else {
		entries, err = loadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if err := Validate(entries); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func loadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

func loadDir(dir string) ([]Entry, error) {
	files, err := filepath.Glob(filepath.Join(dir, "page-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	cover := filepath.Join(dir, CoverFile)
	if _, err := os.Stat(cover); err == nil {
		files = append([]string{cover}, files...)
	}

	var entries []Entry
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		var page pageFile
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		if f == cover {
			page.PageNum = 0
		}
		for _, p := range page.Panels {
			entries = append(entries, Entry{
				Page:        page.PageNum,
				Panel:       p.PanelNum,
				Variants:    p.Variants,
				Prompt:      p.Prompt,
				AspectRatio: p.AspectRatio,
				Size:        p.Size,
			})
		}
	}
	return entries, nil
}

// Validate checks numbering, prompts and duplicate panels. Page 0 is the cover.
func Validate(entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmpty
	}
	seen := make(map[[2]int]bool, len(entries))
	var errs []error
	for i, e := range entries {
		switch {
		case e.Page < 0:
			errs = append(errs, fmt.Errorf("entry %d: page must be >= 0", i))
		case e.Panel < 1:
			errs = append(errs, fmt.Errorf("entry %d: panel must be >= 1", i))
		case strings.TrimSpace(e.Prompt) == "":
			errs = append(errs, fmt.Errorf("entry %d (page %d panel %d): empty prompt", i, e.Page, e.Panel))
		case e.Variants < 0:
			errs = append(errs, fmt.Errorf("entry %d: negative variants", i))
		}
		k := [2]int{e.Page, e.Panel}
		if seen[k] {
			errs = append(errs, fmt.Errorf("entry %d: duplicate page %d panel %d", i, e.Page, e.Panel))
		}
		seen[k] = true
	}
	return errors.Join(errs...)
}

// Jobs expands entries into one job per variant, in manifest order.
// A panel with more than one variant gets keys numbered from 1.
func Jobs(entries []Entry) []scheduler.Job {
	var jobs []scheduler.Job
	for _, e := range entries {
		n := e.Variants
		if n <= 1 {
			jobs = append(jobs, newJob(e, 0))
			continue
		}
		for v := 1; v <= n; v++ {
			jobs = append(jobs, newJob(e, v))
		}
	}
	return jobs
}

func newJob(e Entry, variant int) scheduler.Job {
	key := scheduler.Key{Page: e.Page, Panel: e.Panel, Variant: variant}
	job := scheduler.Job{
		Key:      key,
		Artifact: key.Artifact(),
		Request: render.Request{
			Prompt:      e.Prompt,
			AspectRatio: e.AspectRatio,
			Size:        e.Size,
			Labels:      map[string]string{"job": key.String()},
		},
	}
	if variant > 0 {
		job.Satisfies = []string{key.Final().Artifact()}
	}
	return job
}

// Page is the jobs of one page.
type Page struct {
	Number int
	Jobs   []scheduler.Job
}

// Name returns page-003, or cover for page 0.
func (p Page) Name() string {
	if p.Number == 0 {
		return "cover"
	}
	return fmt.Sprintf("page-%03d", p.Number)
}

// ByPage groups jobs by page number, pages ascending, jobs in their
// original order.
func ByPage(jobs []scheduler.Job) []Page {
	index := make(map[int]int)
	var pages []Page
	for _, j := range jobs {
		i, ok := index[j.Key.Page]
		if !ok {
			i = len(pages)
			index[j.Key.Page] = i
			pages = append(pages, Page{Number: j.Key.Page})
		}
		pages[i].Jobs = append(pages[i].Jobs, j)
	}
	sort.SliceStable(pages, func(a, b int) bool {
		return pages[a].Number < pages[b].Number
	})
	return pages
}

// Filter keeps pages in [from, to]. Zero bounds are open.
func Filter(pages []Page, from, to int) []Page {
	var out []Page
	for _, p := range pages {
		if from > 0 && p.Number < from {
			continue
		}
		if to > 0 && p.Number > to {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ParsePages parses a page list such as "1", "2-5" or "0,3,7-9" into
// sorted unique page numbers.
func ParsePages(spec string) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("page list %q: empty item", spec)
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || start < 0 {
			return nil, fmt.Errorf("page list %q: bad page %q", spec, part)
		}
		end := start
		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || end < start {
				return nil, fmt.Errorf("page list %q: bad range %q", spec, part)
			}
		}
		for n := start; n <= end; n++ {
			seen[n] = true
		}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// Select keeps the listed pages. An empty list keeps everything.
func Select(pages []Page, numbers []int) []Page {
	if len(numbers) == 0 {
		return pages
	}
	want := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		want[n] = true
	}
	var out []Page
	for _, p := range pages {
		if want[p.Number] {
			out = append(out, p)
		}
	}
	return out
}
