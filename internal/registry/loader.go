package registry

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"llmhost/internal/common/fsutil"
	"llmhost/internal/gguf"
	"llmhost/pkg/types"
)

// GGUFScanner builds a model registry from the *.gguf files in a directory.
type GGUFScanner struct {
	log zerolog.Logger
}

// NewGGUFScanner returns a scanner that logs nothing.
func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{log: zerolog.Nop()} }

// WithLogger returns a copy of s that logs unreadable files at debug level.
func (s *GGUFScanner) WithLogger(l zerolog.Logger) *GGUFScanner {
	return &GGUFScanner{log: l.With().Str("component", "registry").Logger()}
}

// LoadDir scans dir with a default scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

// Scan lists the models in dir sorted by file name. ID is the file name and
// Path the absolute path. Header metadata fills Name, Family, Layers and
// ContextLength when the file can be read; files that cannot are still
// listed with what the name gives. Projector files (mmproj*) are not models:
// each is attached to the models whose stem starts with its own.
func (s *GGUFScanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, errors.Wrap(err, "abs path")
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, errors.Wrap(err, "read dir")
	}
	var models []types.Model
	var projectors []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		p := filepath.Join(abs, name)
		if isProjector(name) {
			projectors = append(projectors, p)
			continue
		}
		models = append(models, s.describe(name, p))
	}
	pairProjectors(models, projectors)
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func (s *GGUFScanner) describe(name, path string) types.Model {
	m := types.Model{ID: name, Name: stem(name), Path: path, Quant: QuantFromName(name)}
	md, err := gguf.ReadMetadata(path)
	if err != nil {
		s.log.Debug().Err(err).Str("file", name).Msg("unreadable gguf header")
		return m
	}
	if n, ok := md.Name(); ok && n != "" {
		m.Name = n
	}
	m.Family, _ = md.Architecture()
	if n, ok := md.BlockCount(); ok {
		m.Layers = n
	}
	if n, ok := md.ContextLength(); ok {
		m.ContextLength = n
	}
	return m
}

// Find returns the model with the given ID.
func Find(models []types.Model, id string) (types.Model, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return types.Model{}, false
}

var quantRe = regexp.MustCompile(`(?i)(?:^|[-_.])(I?Q[1-8](?:_[A-Z0-9]+)*|BF16|F16|F32)(?:$|[-_.])`)

// QuantFromName extracts the quantization tag from a model file name, such
// as Q4_K_M or F16. It returns "" when the name carries none.
func QuantFromName(name string) string {
	s := stem(name)
	all := quantRe.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return ""
	}
	return strings.ToUpper(all[len(all)-1][1])
}

func stem(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext)
}

func isProjector(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "mmproj")
}

// projectorKey is the model stem a projector file belongs to:
// "mmproj-gemma-3-4b-it-f16.gguf" keys "gemma-3-4b-it".
func projectorKey(name string) string {
	k := strings.ToLower(stem(name))
	k = strings.TrimPrefix(k, "mmproj")
	k = strings.TrimLeft(k, "-_.")
	if q := strings.ToLower(QuantFromName(name)); q != "" {
		if i := strings.LastIndex(k, q); i > 0 {
			k = k[:i]
		}
	}
	return strings.TrimRight(k, "-_.")
}

// pairProjectors sets ProjectorPath on every model whose lower-cased stem
// starts with a projector's key; the longest key wins.
func pairProjectors(models []types.Model, projectors []string) {
	for i := range models {
		s := strings.ToLower(stem(models[i].ID))
		best := ""
		for _, p := range projectors {
			k := projectorKey(filepath.Base(p))
			if k == "" || !strings.HasPrefix(s, k) || len(k) <= len(best) {
				continue
			}
			best = k
			models[i].ProjectorPath = p
		}
	}
}
