package analyzer

import (
	"context"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/services/objectstore"
)

// SiteFetcher pulls a startup's public website and reduces it to markdown
// for analyzer grounding.
type SiteFetcher struct {
	downloader *objectstore.Downloader
	logger     arbor.ILogger
}

// NewSiteFetcher creates the fetcher.
func NewSiteFetcher(downloader *objectstore.Downloader, logger arbor.ILogger) *SiteFetcher {
	return &SiteFetcher{downloader: downloader, logger: logger}
}

// FetchMarkdown downloads the page and converts its main content to
// markdown. Boilerplate chrome (scripts, nav, footers) is stripped first.
func (f *SiteFetcher) FetchMarkdown(ctx context.Context, pageURL string) (string, error) {
	body, err := f.downloader.Download(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch site: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("failed to parse site html: %w", err)
	}

	doc.Find("script, style, nav, footer, aside, noscript").Remove()

	content := doc.Find("main, article, .content, .main-content, #content, #main, body").First()
	if content.Length() == 0 {
		content = doc.Selection
	}

	converter := md.NewConverter(pageURL, true, nil)
	markdown := converter.Convert(content)

	f.logger.Debug().
		Str("url", pageURL).
		Int("markdown_len", len(markdown)).
		Msg("Site content converted")
	return markdown, nil
}
