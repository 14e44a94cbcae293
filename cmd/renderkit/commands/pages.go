package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/vinayprograms/renderkit/manifest"
)

// pageSelection holds the page flags shared by run and plan.
type pageSelection struct {
	from, to int
	list     string
}

func (p *pageSelection) register(f *pflag.FlagSet) {
	f.IntVar(&p.from, "from", 0, "first page")
	f.IntVar(&p.to, "to", 0, "last page")
	f.StringVar(&p.list, "pages", "", `pages to include, e.g. "3", "2-5" or "0,3,7-9" (0 is the cover)`)
}

// apply narrows pages to the selection. An empty result is an error.
func (p *pageSelection) apply(pages []manifest.Page) ([]manifest.Page, error) {
	pages = manifest.Filter(pages, p.from, p.to)
	if p.list != "" {
		numbers, err := manifest.ParsePages(p.list)
		if err != nil {
			return nil, err
		}
		pages = manifest.Select(pages, numbers)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages match %s", p)
	}
	return pages, nil
}

func (p *pageSelection) String() string {
	if p.list != "" {
		return fmt.Sprintf("--pages %s", p.list)
	}
	return fmt.Sprintf("--from %d --to %d", p.from, p.to)
}
