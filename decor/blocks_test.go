package decor

import (
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToClassName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Tab Title":           "tab-title",
		"  Hello, World!! ":   "hello-world",
		"Cards (Highlight)":   "cards-highlight",
		"already-a-class":     "already-a-class",
		"":                    "",
		"--":                  "",
		"Ünïcode and Digits9": "n-code-and-digits9",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToClassName(in), in)
	}
	assert.Equal(t, "tabTitle", ToCamelCase("Tab Title"))
	assert.Equal(t, "aBC", ToCamelCase("a b c"))
}

func TestDecorateSections(t *testing.T) {
	t.Parallel()
	main := mustFragment(t, `<div><h2>One</h2><p>x</p>`+
		`<div class="cards"><div><div>c</div></div></div>`+
		`<div class="section-metadata">`+
		`<div><div>Style</div><div>Dark, Wide Band</div></div>`+
		`<div><div>Tab Title</div><div>One</div></div>`+
		`</div></div>`)

	Franklin{}.DecorateSections(main)
	section := main.FirstChild
	require.NotNil(t, section)

	assert.Equal(t, []string{"section", "dark", "wide-band"}, classList(section))
	assert.Equal(t, SectionInitialized, getAttr(section, "data-section-status"))
	assert.Equal(t, "display:none", getAttr(section, "style"))
	assert.Equal(t, "One", getAttr(section, "data-tab-title"))
	assert.Empty(t, queryAll(main, sectionMetaSel))

	wrappers := elementChildren(section)
	require.Len(t, wrappers, 2)
	assert.Equal(t, []string{"default-content-wrapper"}, classList(wrappers[0]))
	assert.Len(t, elementChildren(wrappers[0]), 2)
	assert.Empty(t, classList(wrappers[1]))
	assert.True(t, hasClass(wrappers[1].FirstChild, "cards"))
}

func TestDecorateSectionsConfigValues(t *testing.T) {
	t.Parallel()
	main := mustFragment(t, `<div><p>x</p><div class="section-metadata">`+
		`<div><div>Link</div><div><a href="/a">a</a><a href="/b">b</a></div></div>`+
		`<div><div>Background</div><div><img src="/bg.png"></div></div>`+
		`<div><div>Lines</div><div><p> one </p><p>two</p></div></div>`+
		`<div><div></div><div>ignored</div></div>`+
		`<div><div>single column</div></div>`+
		`</div></div>`)

	Franklin{}.DecorateSections(main)
	section := main.FirstChild
	assert.Equal(t, "/a,/b", getAttr(section, "data-link"))
	assert.Equal(t, "/bg.png", getAttr(section, "data-background"))
	assert.Equal(t, "one,two", getAttr(section, "data-lines"))
	assert.False(t, hasAttr(section, "data-"))
	assert.False(t, hasAttr(section, "data-single-column"))
}

func TestDecorateBlocks(t *testing.T) {
	t.Parallel()
	main := mustFragment(t, `<div><p>intro</p><div class="cards highlight"><div><div>c</div></div></div><div><div>no class</div></div></div>`)
	fw := Franklin{}
	fw.DecorateSections(main)
	fw.DecorateBlocks(main)

	section := main.FirstChild
	assert.True(t, hasClass(section, "cards-container"))

	block := queryOne(main, cascadia.MustCompile("div.cards"))
	require.NotNil(t, block)
	assert.Equal(t, []string{"cards", "highlight", "block"}, classList(block))
	assert.Equal(t, "cards", getAttr(block, "data-block-name"))
	assert.Equal(t, SectionInitialized, getAttr(block, "data-block-status"))
	assert.True(t, hasClass(block.Parent, "cards-wrapper"))

	// already decorated blocks are left alone
	setAttr(block, "data-block-status", SectionLoaded)
	fw.DecorateBlock(block)
	assert.Equal(t, SectionLoaded, getAttr(block, "data-block-status"))
	assert.Equal(t, []string{"cards", "highlight", "block"}, classList(block))
}

func TestDecorateButtons(t *testing.T) {
	t.Parallel()
	main := mustFragment(t, served(
		`<p><a href="/go">Go</a></p>`,
		`<p><strong><a href="/buy">Buy</a></strong></p>`,
		`<p><em><a href="/more">More</a></em></p>`,
		`<p>read <a href="/inline">inline</a></p>`,
		`<p><a href="https://example.com/">https://example.com/</a></p>`,
		`<p><a href="/pic" title="keep"><img src="/p.png"></a></p>`,
	))
	Franklin{}.DecorateButtons(main)

	links := queryAll(main, linkSel)
	require.Len(t, links, 6)

	assert.Equal(t, "button", getAttr(links[0], "class"))
	assert.Equal(t, "Go", getAttr(links[0], "title"))
	assert.True(t, hasClass(links[0].Parent, "button-container"))

	assert.Equal(t, "button primary", getAttr(links[1], "class"))
	assert.True(t, hasClass(links[1].Parent.Parent, "button-container"))

	assert.Equal(t, "button secondary", getAttr(links[2], "class"))

	assert.False(t, hasAttr(links[3], "class"))
	assert.Equal(t, "inline", getAttr(links[3], "title"))

	assert.False(t, hasAttr(links[4], "class"))
	assert.False(t, hasAttr(links[5], "class"))
	assert.Equal(t, "keep", getAttr(links[5], "title"))
}

func TestDecorateIcons(t *testing.T) {
	t.Parallel()
	main := mustFragment(t, `<p><span class="icon icon-search"></span><span class="icon"></span></p>`)
	Franklin{CodeBasePath: "/assets"}.DecorateIcons(main)

	imgs := queryAll(main, imgSel)
	require.Len(t, imgs, 1)
	assert.Equal(t, "search", getAttr(imgs[0], "data-icon-name"))
	assert.Equal(t, "/assets/icons/search.svg", getAttr(imgs[0], "src"))
	assert.Equal(t, "lazy", getAttr(imgs[0], "loading"))
}

func TestMarkSectionLoaded(t *testing.T) {
	t.Parallel()
	main := mustFragment(t, `<div class="section" style="display:none; color: blue" data-section-status="initialized"></div>`)
	MarkSectionLoaded(main.FirstChild)
	assert.Equal(t, SectionLoaded, getAttr(main.FirstChild, "data-section-status"))
	assert.Equal(t, "color: blue;", getAttr(main.FirstChild, "style"))
}
