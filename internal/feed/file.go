package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"quote-oracle/internal/oracle"
)

// File serves quotes from a JSON or YAML document on disk. The file is re-read on every
// call so an external writer can keep appending quotes.
//
//	current_block: 22114894
//	quotes:
//	  - {price: "109039634506", block: 22114890}
type File struct {
	path   string
	logger zerolog.Logger
}

type fileDocument struct {
	CurrentBlock uint64      `json:"current_block" yaml:"current_block"`
	Quotes       []fileQuote `json:"quotes" yaml:"quotes"`
}

type fileQuote struct {
	Price priceText `json:"price" yaml:"price"`
	Block uint64    `json:"block" yaml:"block"`
}

// priceText accepts JSON prices both as strings and as bare numbers.
type priceText string

func (p *priceText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = priceText(s)
		return nil
	}
	*p = priceText(data)
	return nil
}

// NewFile builds a file-backed feed.
func NewFile(path string, logger zerolog.Logger) *File {
	return &File{path: path, logger: logger.With().Str("component", "file_feed").Str("path", path).Logger()}
}

// CurrentBlock returns current_block from the file, or the newest quote height if unset.
func (f *File) CurrentBlock(ctx context.Context) (uint64, error) {
	doc, quotes, err := f.load()
	if err != nil {
		return 0, err
	}
	if doc.CurrentBlock > 0 {
		return doc.CurrentBlock, nil
	}
	if len(quotes) == 0 {
		return 0, errors.New("feed file has neither current_block nor quotes")
	}
	return quotes[len(quotes)-1].BlockHeight, nil
}

// Quotes returns the quotes observed at or before atBlock.
func (f *File) Quotes(ctx context.Context, atBlock uint64) ([]oracle.Quote, error) {
	_, quotes, err := f.load()
	if err != nil {
		return nil, err
	}

	end := sort.Search(len(quotes), func(i int) bool {
		return quotes[i].BlockHeight > atBlock
	})
	f.logger.Debug().Uint64("block", atBlock).Int("quotes", end).Msg("feed read")
	return quotes[:end], nil
}

func (f *File) load() (fileDocument, []oracle.Quote, error) {
	if f.path == "" {
		return fileDocument{}, nil, fmt.Errorf("%w: feed file path", ErrNotConfigured)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return fileDocument{}, nil, fmt.Errorf("read feed file: %w", err)
	}

	doc, err := parseDocument(filepath.Ext(f.path), data)
	if err != nil {
		return fileDocument{}, nil, err
	}

	quotes, err := doc.toQuotes()
	if err != nil {
		return fileDocument{}, nil, err
	}
	return doc, quotes, nil
}

// parseDocument decodes a feed document; ext selects YAML (.yaml, .yml) or JSON.
func parseDocument(ext string, data []byte) (fileDocument, error) {
	var doc fileDocument
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fileDocument{}, fmt.Errorf("decode yaml feed: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fileDocument{}, fmt.Errorf("decode json feed: %w", err)
		}
	}
	return doc, nil
}

func (d fileDocument) toQuotes() ([]oracle.Quote, error) {
	quotes := make([]oracle.Quote, 0, len(d.Quotes))
	for i, q := range d.Quotes {
		price, err := uint256.FromDecimal(strings.TrimSpace(string(q.Price)))
		if err != nil {
			return nil, fmt.Errorf("quote %d: parse price %q: %w", i, q.Price, err)
		}
		quotes = append(quotes, oracle.Quote{Price: *price, BlockHeight: q.Block})
	}
	if err := oracle.CheckOrdered(quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

var _ Source = (*File)(nil)
