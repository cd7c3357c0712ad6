package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"pagedecor/decor"
)

func main() {
	url := "https://www.aem.live/docs/"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, TimeFormat: "15:04:05.00"})
	logger.Info("fetch", "url", url)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		logger.Fatal("bad url", "err", err)
	}
	req.Header.Set("User-Agent", "tabsdebug/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Fatal("fetch failed", "err", err)
	}
	defer resp.Body.Close()

	doc, err := decor.ParseDocument(resp.Body)
	if err != nil {
		logger.Fatal("parse failed", "err", err)
	}
	main := decor.FindMain(doc)
	if main == nil {
		logger.Fatal("no <main> element")
	}
	decor.Franklin{}.DecorateSections(main)

	pos := -1
	for c := main.FirstChild; c != nil; c = c.NextSibling {
		pos++
		if title := decor.GetAttr(c, "data-tab-title"); title != "" {
			fmt.Printf("child=%d tab=%q classes=%q\n", pos, title, decor.GetAttr(c, "class"))
		}
	}
	for i, run := range decor.CalculateTabCoordinates(main) {
		titles := make([]string, 0, len(run.Sections))
		for _, s := range run.Sections {
			titles = append(titles, decor.GetAttr(s, "data-tab-title"))
		}
		fmt.Printf("run=%d start=%d sections=[%s]\n", i, run.Start, strings.Join(titles, ", "))
	}
}
