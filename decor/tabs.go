package decor

import (
	"errors"
	"fmt"
	"sort"

	"github.com/andybalholm/cascadia"
	"github.com/charmbracelet/log"
	"golang.org/x/net/html"
)

// ErrDetachedSection is returned when a tab section is no longer a child of
// the content root it was measured in.
var ErrDetachedSection = errors.New("tab section detached from content root")

var tabSectionSel = cascadia.MustCompile("div.section[data-tab-title]")

// TabRun is a group of tab sections that fold into one tabs block. Start is
// the position of the first member among all child nodes of the root.
type TabRun struct {
	Start    int
	Sections []*html.Node
}

// TabCoordinates lists tab runs in ascending Start order.
type TabCoordinates []TabRun

// Len returns the total number of member sections.
func (c TabCoordinates) Len() int {
	n := 0
	for _, r := range c {
		n += len(r.Sections)
	}
	return n
}

// CalculateTabCoordinates groups the tab sections directly under main into
// runs. Positions count every child node, so sections in served markup sit
// two apart with a whitespace node between them; each member therefore moves
// the expected position of the next one by two.
func CalculateTabCoordinates(main *html.Node) TabCoordinates {
	var coords TabCoordinates
	lastTabIndex := -1
	foldedTabsCounter := 0
	pos := -1
	for c := main.FirstChild; c != nil; c = c.NextSibling {
		pos++
		if c.Type != html.ElementNode || !tabSectionSel.Match(c) {
			continue
		}
		if lastTabIndex < 0 || pos-foldedTabsCounter != lastTabIndex {
			lastTabIndex = pos
			foldedTabsCounter = 0
			coords = append(coords, TabRun{Start: pos})
		}
		foldedTabsCounter += 2
		run := &coords[len(coords)-1]
		run.Sections = append(run.Sections, c)
	}
	return coords
}

// AggregateTabSections folds every run into a tabs block inside a new hidden
// section. Runs are folded in ascending order; after each fold the next
// run's position is shifted back by the previous run's size minus one. The
// shift is not accumulated across runs. A failing run is logged and skipped;
// all failures are returned joined.
func AggregateTabSections(main *html.Node, coords TabCoordinates, fw Framework, logger *log.Logger) (int, error) {
	if logger == nil {
		logger = log.Default()
	}
	runs := append(TabCoordinates(nil), coords...)
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Start < runs[j].Start })

	var errs []error
	folded := 0
	sectionIndexDelta := 0
	for _, run := range runs {
		target := run.Start - sectionIndexDelta
		if err := autoBlockTabComponent(main, target, run.Sections, fw); err != nil {
			logger.Error("tab fold failed", "start", run.Start, "target", target, "sections", len(run.Sections), "err", err)
			errs = append(errs, fmt.Errorf("tab run at %d: %w", run.Start, err))
		} else {
			folded++
		}
		sectionIndexDelta = len(run.Sections) - 1
	}
	return folded, errors.Join(errs...)
}

func autoBlockTabComponent(main *html.Node, targetIndex int, tabSections []*html.Node, fw Framework) error {
	if len(tabSections) == 0 {
		return nil
	}
	for _, s := range tabSections {
		if s.Parent != main {
			return ErrDetachedSection
		}
	}
	if targetIndex < 0 {
		return fmt.Errorf("negative insertion index %d", targetIndex)
	}

	// Kept hidden until the block loader activates the tabs block.
	section := newElement("div",
		html.Attribute{Key: "class", Val: "section"},
		html.Attribute{Key: "style", Val: "display:none"},
		html.Attribute{Key: "data-section-status", Val: SectionLoading},
	)
	tabsBlock := newElement("div", html.Attribute{Key: "class", Val: "tabs"})
	wrapper := newElement("div", html.Attribute{Key: "class", Val: "contents-wrapper"})
	tabsBlock.AppendChild(wrapper)

	for _, s := range tabSections {
		removeClass(s, "section")
		addClass(s, "contents")
		main.RemoveChild(s)
		wrapper.AppendChild(s)
		removeStyleProperty(s, "display")
	}
	insertAt(main, section, targetIndex)
	section.AppendChild(tabsBlock)
	if fw != nil {
		fw.DecorateBlock(tabsBlock)
	}
	return nil
}
