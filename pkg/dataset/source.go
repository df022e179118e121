package dataset

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Source controls where the dataset comes from.
type Source string

const (
	// SourceUploaded uses the supplied input and falls back to the bundled sample.
	SourceUploaded Source = "uploaded"
	// SourceDefaultSample always uses the bundled sample.
	SourceDefaultSample Source = "default-sample"
	// SourceErrorIfMissing requires the input to be supplied.
	SourceErrorIfMissing Source = "error-if-missing"

	// SampleName is the display name of the bundled sample.
	SampleName = "transactions.csv"
)

var (
	//go:embed sample/transactions.csv
	sampleFS embed.FS

	// ErrNoInput is returned when input is required but none was supplied.
	ErrNoInput = errors.New("no input dataset supplied")

	// Sources lists the supported input sources.
	Sources = []Source{SourceUploaded, SourceDefaultSample, SourceErrorIfMissing}
)

// ParseSource converts a string into a Source.
func ParseSource(v string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(v)))
	if s == "" {
		return SourceUploaded, nil
	}
	if !contains(Sources, s) {
		return "", fmt.Errorf("%w: unsupported source %q", ErrInput, v)
	}
	return s, nil
}

// Sample returns the raw bytes of the bundled sample dataset.
func Sample() ([]byte, error) {
	b, err := sampleFS.ReadFile("sample/transactions.csv")
	if err != nil {
		return nil, fmt.Errorf("reading bundled sample: %w", err)
	}
	return b, nil
}

// Load resolves the dataset for the given source. The input may be nil when
// nothing was supplied. Returns the dataset and the name of what was loaded.
func Load(src Source, input io.Reader, name string) (*Dataset, string, error) {
	switch src {
	case SourceDefaultSample:
		return loadSample()
	case SourceErrorIfMissing:
		if input == nil {
			return nil, "", ErrNoInput
		}
	case SourceUploaded, "":
		if input == nil {
			return loadSample()
		}
	default:
		return nil, "", fmt.Errorf("%w: unsupported source %q", ErrInput, src)
	}

	d, err := ReadCSV(input)
	if err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, name, nil
}

func loadSample() (*Dataset, string, error) {
	b, err := Sample()
	if err != nil {
		return nil, "", err
	}
	d, err := ReadCSV(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("parsing bundled sample: %w", err)
	}
	return d, SampleName, nil
}
