package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"vidscale/internal/logging"
	"vidscale/internal/services"
)

const (
	// DefaultBaseArtifact is the shared model file that carries no resolution.
	DefaultBaseArtifact = "cunet_weight.pth"
	// DefaultField is the underscore-separated field holding WIDTHXHEIGHT.
	DefaultField = 4
)

// ErrMalformedArtifact marks an artifact filename without a usable resolution token.
var ErrMalformedArtifact = errors.New("malformed artifact name")

// ResolutionEntry is one supported (width, height) pair.
type ResolutionEntry struct {
	Width  int
	Height int
}

// String renders the entry as WIDTHXHEIGHT.
func (e ResolutionEntry) String() string {
	return strconv.Itoa(e.Width) + "X" + strconv.Itoa(e.Height)
}

// ParseIssue records a filename skipped during Build.
type ParseIssue struct {
	Name string
	Err  error
}

// Options controls directory scanning. Zero values select the defaults; the
// leading field holds the model family and never carries a resolution.
type Options struct {
	BaseArtifact string
	Field        int
	Strict       bool
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.BaseArtifact) == "" {
		o.BaseArtifact = DefaultBaseArtifact
	}
	if o.Field <= 0 {
		o.Field = DefaultField
	}
	return o
}

// Catalog maps artifact width to the set of heights available at that width.
type Catalog struct {
	entries map[int]map[int]struct{}
}

// New returns a catalog holding the given entries.
func New(entries ...ResolutionEntry) Catalog {
	c := Catalog{entries: make(map[int]map[int]struct{})}
	for _, e := range entries {
		c.add(e)
	}
	return c
}

func (c *Catalog) add(e ResolutionEntry) {
	if c.entries == nil {
		c.entries = make(map[int]map[int]struct{})
	}
	heights, ok := c.entries[e.Width]
	if !ok {
		heights = make(map[int]struct{})
		c.entries[e.Width] = heights
	}
	heights[e.Height] = struct{}{}
}

// Has reports whether width x height is available.
func (c Catalog) Has(width, height int) bool {
	heights, ok := c.entries[width]
	if !ok {
		return false
	}
	_, ok = heights[height]
	return ok
}

// Widths returns every width in ascending order.
func (c Catalog) Widths() []int {
	widths := make([]int, 0, len(c.entries))
	for w := range c.entries {
		widths = append(widths, w)
	}
	sort.Ints(widths)
	return widths
}

// Heights returns the heights available at width in ascending order.
func (c Catalog) Heights(width int) []int {
	set := c.entries[width]
	heights := make([]int, 0, len(set))
	for h := range set {
		heights = append(heights, h)
	}
	sort.Ints(heights)
	return heights
}

// Len returns the number of distinct pairs.
func (c Catalog) Len() int {
	n := 0
	for _, heights := range c.entries {
		n += len(heights)
	}
	return n
}

// String renders the catalog as "1280:[240 720] 1920:[363 1080]".
func (c Catalog) String() string {
	parts := make([]string, 0, len(c.entries))
	for _, w := range c.Widths() {
		heights := c.Heights(w)
		hs := make([]string, len(heights))
		for i, h := range heights {
			hs[i] = strconv.Itoa(h)
		}
		parts = append(parts, fmt.Sprintf("%d:[%s]", w, strings.Join(hs, " ")))
	}
	return strings.Join(parts, " ")
}

// Build scans dir and derives the supported resolutions. Malformed names are
// returned as issues and skipped unless opts.Strict is set.
func Build(dir string, opts Options) (Catalog, []ParseIssue, error) {
	opts = opts.withDefaults()
	logger := logging.NewComponentLogger(opts.Logger, "catalog")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Catalog{}, nil, services.Wrap(services.ErrConfiguration, "catalog", "read artifact dir", dir, err)
	}

	cat := New()
	var issues []ParseIssue
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || name == opts.BaseArtifact {
			continue
		}
		res, err := ParseFilenameField(name, opts.Field)
		if err != nil {
			issue := ParseIssue{Name: name, Err: err}
			if opts.Strict {
				return Catalog{}, []ParseIssue{issue}, services.Wrap(services.ErrConfiguration, "catalog", "parse artifact", filepath.Join(dir, name), err)
			}
			issues = append(issues, issue)
			logging.WarnWithContext(logger, "skipping malformed artifact", "artifact_malformed",
				logging.String("artifact", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "rename the file or move it out of the artifact directory"),
				logging.String(logging.FieldImpact, "artifact ignored"),
			)
			continue
		}
		cat.add(res)
	}

	logger.Debug("artifact catalog built",
		logging.String("dir", dir),
		logging.Int("resolutions", cat.Len()),
		logging.Int("skipped", len(issues)),
		logging.String("supported", cat.String()),
	)
	return cat, issues, nil
}

// ParseFilename extracts the resolution from an artifact name using DefaultField.
func ParseFilename(name string) (ResolutionEntry, error) {
	return ParseFilenameField(name, DefaultField)
}

// ParseFilenameField extracts the resolution token from the given
// underscore-separated field of name.
func ParseFilenameField(name string, field int) (ResolutionEntry, error) {
	fields := strings.Split(name, "_")
	if field < 0 || field >= len(fields) {
		return ResolutionEntry{}, fmt.Errorf("%w: %q has %d fields, need %d", ErrMalformedArtifact, name, len(fields), field+1)
	}
	token := fields[field]
	if dot := strings.IndexByte(token, '.'); dot >= 0 {
		token = token[:dot]
	}
	widthText, heightText, ok := strings.Cut(strings.ToUpper(token), "X")
	if !ok {
		return ResolutionEntry{}, fmt.Errorf("%w: %q: token %q lacks X separator", ErrMalformedArtifact, name, token)
	}
	width, err := strconv.Atoi(widthText)
	if err != nil || width <= 0 {
		return ResolutionEntry{}, fmt.Errorf("%w: %q: bad width %q", ErrMalformedArtifact, name, widthText)
	}
	height, err := strconv.Atoi(heightText)
	if err != nil || height <= 0 {
		return ResolutionEntry{}, fmt.Errorf("%w: %q: bad height %q", ErrMalformedArtifact, name, heightText)
	}
	return ResolutionEntry{Width: width, Height: height}, nil
}
