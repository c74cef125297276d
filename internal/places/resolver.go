// Package places resolves human-readable place names to catalog places.
package places

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/models"
	"github.com/DeafMist/stat-radar/backend/internal/processing"
)

const (
	// DefaultCandidateLimit caps how many places one ambiguous name expands to.
	DefaultCandidateLimit = 5
	lookupConcurrency     = 4
)

// Request describes one resolution.
type Request struct {
	Names []string
	// Parent optionally scopes Names to places under it.
	Parent string
	// SampleLimit bounds the children sampled when Parent is set and Names
	// is empty.
	SampleLimit int
}

// Resolution is the request-scoped outcome of a resolution.
type Resolution struct {
	// Places holds every resolved place in input order, then catalog order,
	// without duplicates.
	Places     []models.Place
	ByName     map[string][]models.Place
	Unresolved []string
	// Ambiguous lists the candidate dcids of names matching several places.
	Ambiguous map[string][]string
	Parent    models.Optional[models.Place]

	parentRequested bool
}

// ParentMissing reports whether a parent was requested but not found.
func (r *Resolution) ParentMissing() bool {
	return r.parentRequested && !r.Parent.Present()
}

// Resolver turns place names into places using the catalog.
type Resolver struct {
	lookup         catalog.PlaceLookup
	candidateLimit int
	log            *slog.Logger
}

// NewResolver builds a Resolver over lookup.
func NewResolver(lookup catalog.PlaceLookup, log *slog.Logger) *Resolver {
	return &Resolver{lookup: lookup, candidateLimit: DefaultCandidateLimit, log: log}
}

// Resolve resolves req. Names that cannot be found, or that do not sit under
// the parent, are reported in Unresolved without failing the others. Only
// malformed input and backend failures return an error.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	keys := make([]string, len(req.Names))
	for i, name := range req.Names {
		keys[i] = processing.NormalizePlaceName(name)
		if keys[i] == "" {
			return nil, catalog.InvalidArgument("place name %q is empty", name)
		}
	}

	res := &Resolution{
		ByName:          make(map[string][]models.Place, len(req.Names)),
		Ambiguous:       map[string][]string{},
		parentRequested: strings.TrimSpace(req.Parent) != "",
	}

	var parent models.Place
	if res.parentRequested {
		key := processing.NormalizePlaceName(req.Parent)
		if key == "" {
			return nil, catalog.InvalidArgument("parent place %q is empty", req.Parent)
		}
		candidates, err := r.lookup.LookupPlaces(ctx, key, 1)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			r.log.Debug("parent place not found", slog.String("parent", req.Parent))
			res.Unresolved = append(res.Unresolved, req.Names...)
			return res, nil
		}
		parent = candidates[0]
		res.Parent = models.Some(parent)

		if len(req.Names) == 0 {
			return r.sampleChildren(ctx, res, parent, req.SampleLimit)
		}
	}

	found := make([][]models.Place, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			candidates, err := r.lookup.LookupPlaces(gctx, key, r.candidateLimit)
			if err != nil {
				return err
			}
			found[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for i, name := range req.Names {
		candidates := found[i]
		if res.parentRequested {
			candidates = within(candidates, parent.DCID)
		}
		if len(candidates) == 0 {
			res.Unresolved = append(res.Unresolved, name)
			continue
		}

		res.ByName[name] = candidates
		if len(candidates) > 1 {
			dcids := make([]string, 0, len(candidates))
			for _, p := range candidates {
				dcids = append(dcids, p.DCID)
			}
			res.Ambiguous[name] = dcids
		}
		for _, p := range candidates {
			if _, dup := seen[p.DCID]; dup {
				continue
			}
			seen[p.DCID] = struct{}{}
			res.Places = append(res.Places, p)
		}
	}

	if len(res.Unresolved) > 0 {
		r.log.Debug("unresolved places", slog.Any("names", res.Unresolved))
	}
	return res, nil
}

func (r *Resolver) sampleChildren(ctx context.Context, res *Resolution, parent models.Place, limit int) (*Resolution, error) {
	if limit <= 0 {
		return res, nil
	}
	children, err := r.lookup.ChildPlaces(ctx, parent.DCID, limit)
	if err != nil {
		return nil, err
	}
	if len(children) > limit {
		children = children[:limit]
	}
	res.Places = children
	return res, nil
}

func within(candidates []models.Place, parentDCID string) []models.Place {
	out := make([]models.Place, 0, len(candidates))
	for _, p := range candidates {
		if p.Within(parentDCID) {
			out = append(out, p)
		}
	}
	return out
}
