package content

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stemforge/stem-forge/internal/domain"
	"gopkg.in/yaml.v3"
)

// maxDocumentSize caps a fetched content document.
const maxDocumentSize = 4 << 20

//go:embed builtin/challenges.yaml
var builtinYAML []byte

// Source provides challenge content.
type Source interface {
	Fetch(ctx context.Context) ([]domain.Challenge, error)
	// Describe names the source in logs.
	Describe() string
}

// Decode parses a JSON or YAML challenge document. The document is either a
// list of challenges or an object with a "challenges" list.
func Decode(data []byte) ([]domain.Challenge, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidContent)
	}

	var list []domain.Challenge
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Challenges []domain.Challenge `yaml:"challenges"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidContent, err)
	}
	return doc.Challenges, nil
}

// Builtin returns the challenges bundled with the binary.
func Builtin() []domain.Challenge {
	challenges, err := Decode(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("content: builtin challenges: %v", err))
	}
	return challenges
}

// HTTPSource fetches a challenge document with a GET request.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates a source reading from url.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Describe implements Source.
func (s *HTTPSource) Describe() string { return s.URL }

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) ([]domain.Challenge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", s.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.URL, err)
	}
	return Decode(body)
}

// FileSource reads challenges from a file, or from every .json, .yaml and
// .yml file in a directory.
type FileSource struct {
	Path string
}

// Describe implements Source.
func (s FileSource) Describe() string { return s.Path }

// Fetch implements Source.
func (s FileSource) Fetch(_ context.Context) ([]domain.Challenge, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return readFile(s.Path)
	}

	entries, err := os.ReadDir(s.Path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var all []domain.Challenge
	for _, name := range names {
		challenges, err := readFile(filepath.Join(s.Path, name))
		if err != nil {
			return nil, err
		}
		all = append(all, challenges...)
	}
	return all, nil
}

func readFile(path string) ([]domain.Challenge, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	challenges, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return challenges, nil
}
