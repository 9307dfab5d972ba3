package main

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// ArticleSource returns the body text of the article at url
type ArticleSource interface {
	Fetch(ctx context.Context, url string) (string, error)
}

var htmlBlockPattern = regexp.MustCompile(`(?i)^<(!doctype|html|body|article|main|section|div|p|h[1-6]|ul|ol|table|blockquote)\b`)

// ArticleFetcher asks the AI agent to extract an article body and validates
// the answer
type ArticleFetcher struct {
	generator Generator
	prompt    *template.Template
	converter *md.Converter
	minChars  int
	logger    Logger
}

// NewArticleFetcher creates a fetcher. A nil generator means no credential
// was configured; every Fetch then fails without a network call.
func NewArticleFetcher(generator Generator, promptTemplate string, minChars int, logger Logger) (*ArticleFetcher, error) {
	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if minChars < minContentChars {
		minChars = minContentChars
	}

	return &ArticleFetcher{
		generator: generator,
		prompt:    tmpl,
		converter: md.NewConverter("", true, nil),
		minChars:  minChars,
		logger:    logger.With(String("component", "fetcher")),
	}, nil
}

// Fetch extracts the article text for url
func (f *ArticleFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.generator == nil {
		return "", &FetchError{URL: url, Err: ErrMissingCredential}
	}

	prompt, err := f.buildPrompt(url)
	if err != nil {
		return "", &FetchError{URL: url, Err: ErrServiceUnreachable, Cause: err}
	}

	text, err := f.generator.Generate(ctx, prompt)
	if err != nil {
		f.logger.Error("Article extraction request failed", String("url", url), Err(err))
		return "", &FetchError{URL: url, Err: ErrServiceUnreachable, Cause: err}
	}

	text = f.normalize(url, text)
	if utf8.RuneCountInString(text) < f.minChars {
		f.logger.Warn("Extracted content too short",
			String("url", url),
			Int("chars", utf8.RuneCountInString(text)),
			Int("min_chars", f.minChars),
		)
		return "", &FetchError{URL: url, Err: ErrNoMeaningfulContent}
	}

	f.logger.Debug("Article extracted", String("url", url), Int("chars", utf8.RuneCountInString(text)))
	return text, nil
}

func (f *ArticleFetcher) buildPrompt(url string) (string, error) {
	var buf bytes.Buffer
	if err := f.prompt.Execute(&buf, struct{ URL string }{URL: url}); err != nil {
		return "", fmt.Errorf("executing prompt template: %w", err)
	}
	return buf.String(), nil
}

// normalize trims the model output and converts it to Markdown when the
// answer is an HTML document or fragment. Plain text with stray tags is kept
// as is.
func (f *ArticleFetcher) normalize(url, text string) string {
	text = strings.TrimSpace(text)
	if !isHTMLDocument(text) {
		return text
	}

	converted, err := f.converter.ConvertString(text)
	if err != nil {
		f.logger.Warn("HTML conversion failed, keeping raw text", String("url", url), Err(err))
		return text
	}
	return strings.TrimSpace(converted)
}

// isHTMLDocument reports whether text opens with a block-level element
func isHTMLDocument(text string) bool {
	return htmlBlockPattern.MatchString(text)
}
