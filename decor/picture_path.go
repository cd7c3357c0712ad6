package decor

import (
	"fmt"
	"net/url"
	"strconv"
)

// PathPictures is the generic picture generator for images served by the
// page's own origin. Candidates keep only the resolved path and ask the
// origin's image pipeline for a width, a format and medium optimization.
type PathPictures struct {
	// Base resolves relative sources; it is usually the page URL.
	Base string
}

func (g PathPictures) Picture(src, alt string, eager bool, breakpoints []Breakpoint) (*Picture, error) {
	breakpoints = normalizeBreakpoints(breakpoints)
	ref, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidImageURL, src, err)
	}
	if g.Base != "" {
		base, err := url.Parse(g.Base)
		if err != nil {
			return nil, fmt.Errorf("picture base %q: %w", g.Base, err)
		}
		ref = base.ResolveReference(ref)
	}
	pathname := ref.EscapedPath()
	if pathname == "" {
		pathname = "/"
	}
	ext := urlExtension(pathname)
	candidate := func(width int, format string) string {
		return pathname + "?width=" + strconv.Itoa(width) + "&format=" + format + "&optimize=medium"
	}

	pic := &Picture{}
	for _, br := range breakpoints {
		pic.Sources = append(pic.Sources, Source{
			Media:  br.Media,
			Type:   "image/webp",
			Format: webpFormat,
			Width:  br.Width,
			Srcset: candidate(br.Width, webpFormat),
		})
	}
	last := len(breakpoints) - 1
	for i, br := range breakpoints {
		if i < last {
			pic.Sources = append(pic.Sources, Source{Media: br.Media, Format: ext, Width: br.Width, Srcset: candidate(br.Width, ext)})
			continue
		}
		pic.Img = Image{Src: candidate(br.Width, ext), Alt: alt, Eager: eager, Format: ext, Width: br.Width}
	}
	return pic, nil
}
