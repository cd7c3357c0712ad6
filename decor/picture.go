package decor

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Breakpoint is one responsive variant: an optional media condition and the
// width requested from the image service.
type Breakpoint struct {
	Media string
	Width int
}

// DefaultBreakpoints is a desktop variant above 600px and a mobile fallback.
var DefaultBreakpoints = []Breakpoint{
	{Media: "(min-width: 600px)", Width: 2000},
	{Width: 750},
}

const webpFormat = "webply"

// Source is a <source> candidate of a picture.
type Source struct {
	Media  string
	Type   string
	Format string
	Width  int
	Srcset string
}

// Image is the terminal <img> of a picture.
type Image struct {
	Src    string
	Alt    string
	Eager  bool
	Format string
	Width  int
}

// Loading returns the value of the loading attribute.
func (i Image) Loading() string {
	if i.Eager {
		return "eager"
	}
	return "lazy"
}

// Picture describes a responsive image: candidates in priority order and one
// fallback image.
type Picture struct {
	Sources []Source
	Img     Image
}

// Node materializes the picture as a detached <picture> element.
func (p *Picture) Node() *html.Node {
	pic := newElement("picture")
	for _, s := range p.Sources {
		src := newElement("source")
		if s.Media != "" {
			setAttr(src, "media", s.Media)
		}
		if s.Type != "" {
			setAttr(src, "type", s.Type)
		}
		setAttr(src, "srcset", s.Srcset)
		pic.AppendChild(src)
	}
	img := newElement("img",
		html.Attribute{Key: "loading", Val: p.Img.Loading()},
		html.Attribute{Key: "alt", Val: p.Img.Alt},
		html.Attribute{Key: "src", Val: p.Img.Src},
	)
	pic.AppendChild(img)
	return pic
}

// mapURLs returns a copy of p with fn applied to every candidate URL.
func (p *Picture) mapURLs(fn func(string) string) *Picture {
	out := &Picture{Sources: make([]Source, len(p.Sources)), Img: p.Img}
	for i, s := range p.Sources {
		s.Srcset = fn(s.Srcset)
		out.Sources[i] = s
	}
	out.Img.Src = fn(p.Img.Src)
	return out
}

// PictureGenerator builds pictures for sources this package does not rewrite
// itself, such as paths relative to the page.
type PictureGenerator interface {
	Picture(src, alt string, eager bool, breakpoints []Breakpoint) (*Picture, error)
}

var absoluteHTTP = regexp.MustCompile(`(?i)^https?://`)

func normalizeBreakpoints(breakpoints []Breakpoint) []Breakpoint {
	if breakpoints == nil {
		return DefaultBreakpoints
	}
	if len(breakpoints) == 0 {
		return DefaultBreakpoints[len(DefaultBreakpoints)-1:]
	}
	return breakpoints
}

// urlExtension returns everything after the last dot of a path, the whole
// path when it has none.
func urlExtension(path string) string {
	return path[strings.LastIndex(path, ".")+1:]
}

// CreateOptimizedPicture builds a picture for an absolute image URL, asking
// the image service for webp first and the original format second. Relative
// sources are handed to fallback. A nil breakpoints list means
// DefaultBreakpoints.
func CreateOptimizedPicture(src, alt string, eager bool, breakpoints []Breakpoint, fallback PictureGenerator) (*Picture, error) {
	breakpoints = normalizeBreakpoints(breakpoints)
	if !absoluteHTTP.MatchString(src) {
		if fallback == nil {
			fallback = PathPictures{}
		}
		return fallback.Picture(src, alt, eager, breakpoints)
	}
	u, err := parseAbsolute(src)
	if err != nil {
		return nil, err
	}
	ext := urlExtension(u.Path)

	pic := &Picture{}
	for _, br := range breakpoints {
		pic.Sources = append(pic.Sources, Source{
			Media:  br.Media,
			Type:   "image/webp",
			Format: webpFormat,
			Width:  br.Width,
			Srcset: withParams(src, sizeParams(br.Width, webpFormat), false),
		})
	}
	last := len(breakpoints) - 1
	for i, br := range breakpoints {
		target := withParams(src, sizeParams(br.Width, ext), false)
		if i < last {
			pic.Sources = append(pic.Sources, Source{
				Media:  br.Media,
				Format: ext,
				Width:  br.Width,
				Srcset: target,
			})
			continue
		}
		pic.Img = Image{Src: target, Alt: alt, Eager: eager, Format: ext, Width: br.Width}
	}
	return pic, nil
}

func sizeParams(width int, format string) queryParams {
	return queryParams{
		{key: "width", value: strconv.Itoa(width)},
		{key: "format", value: format},
	}
}
