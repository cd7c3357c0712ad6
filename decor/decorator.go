// Package decor decorates block-framework pages on the server: external
// image links become responsive pictures, and runs of consecutive tab
// sections fold into tabs blocks.
package decor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"
)

// Options configures a Decorator. Zero values select the defaults.
type Options struct {
	// Marker is the link text that marks an external image.
	Marker string
	// Framework performs section, block, button and icon decoration.
	Framework Framework
	// Pictures builds pictures for relative image sources.
	Pictures PictureGenerator
	// Reveal marks every section loaded after decoration, for output that is
	// served without the client-side block loader.
	Reveal bool
	Logger *log.Logger
}

// Report summarizes one decoration pass.
type Report struct {
	ExternalImages int
	TabRuns        int
	TabSections    int
	FailedTabRuns  int
}

// Decorator runs the decoration pass over a page's main content.
type Decorator struct {
	marker    string
	framework Framework
	pictures  PictureGenerator
	reveal    bool
	logger    *log.Logger
}

// New returns a Decorator with defaults filled in.
func New(opts Options) *Decorator {
	d := &Decorator{
		marker:    opts.Marker,
		framework: opts.Framework,
		pictures:  opts.Pictures,
		reveal:    opts.Reveal,
		logger:    opts.Logger,
	}
	if d.marker == "" {
		d.marker = DefaultExternalImageMarker
	}
	if d.framework == nil {
		d.framework = Franklin{}
	}
	if d.pictures == nil {
		d.pictures = PathPictures{}
	}
	if d.logger == nil {
		d.logger = log.Default()
	}
	return d
}

// DecorateMain rewrites external images, applies framework decoration and
// folds tab sections. Image URL errors abort the pass; tab fold failures are
// reported but do not stop other runs.
func (d *Decorator) DecorateMain(main *html.Node) (Report, error) {
	var rep Report
	n, err := RewriteExternalImages(main, d.marker, d.pictures)
	rep.ExternalImages = n
	if err != nil {
		return rep, fmt.Errorf("decorate external images: %w", err)
	}

	d.framework.DecorateButtons(main)
	d.framework.DecorateIcons(main)
	d.framework.DecorateSections(main)
	d.framework.DecorateBlocks(main)

	coords := CalculateTabCoordinates(main)
	folded, err := AggregateTabSections(main, coords, d.framework, d.logger)
	rep.TabRuns = folded
	rep.TabSections = coords.Len()
	rep.FailedTabRuns = len(coords) - folded

	if d.reveal {
		for _, s := range queryAll(main, sectionSel) {
			MarkSectionLoaded(s)
		}
	}
	d.logger.Debug("main decorated",
		"external_images", rep.ExternalImages,
		"tab_runs", rep.TabRuns,
		"tab_sections", rep.TabSections,
	)
	if err != nil {
		return rep, fmt.Errorf("aggregate tab sections: %w", err)
	}
	return rep, nil
}

// DecorateDocument applies the page-level decoration around DecorateMain:
// document language, template and theme classes, the breadcrumb flag and the
// appear class once main is done. Documents without <main> only get the
// page-level classes.
func (d *Decorator) DecorateDocument(doc *html.Node) (Report, error) {
	if root := findFirstByTag(doc, "html"); root != nil {
		setAttr(root, "lang", "en")
	}
	body := findFirstByTag(doc, "body")
	if body != nil {
		for _, name := range []string{"template", "theme"} {
			for _, c := range strings.Split(GetMetadata(doc, name), ",") {
				addClass(body, ToClassName(strings.TrimSpace(c)))
			}
		}
		if strings.EqualFold(GetMetadata(doc, "breadcrumbs"), "true") {
			addClass(body, "has-breadcrumb")
		}
	}
	main := findFirstByTag(doc, "main")
	if main == nil {
		return Report{}, nil
	}
	rep, err := d.DecorateMain(main)
	if err != nil {
		return rep, err
	}
	if body != nil {
		addClass(body, "appear")
	}
	return rep, nil
}
