// Package resolver turns a ConnectIntent into one the current catalog can satisfy.
package resolver

import (
	"context"
	"log/slog"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/intent"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
	"github.com/asheshgoplani/vpn-deck/internal/servers"
)

var resolverLog = logging.ForComponent(logging.CompResolver)

// IndexSource hands out the index of the latest catalog snapshot.
type IndexSource interface {
	Index() *servers.Index
}

// Result is the outcome of a resolution.
type Result struct {
	Intent intent.ConnectIntent
	// Steps is how many generalizations were applied to the input.
	Steps int
	// Unsatisfiable is set when nothing in the catalog can serve even the returned
	// intent, e.g. an empty catalog.
	Unsatisfiable bool
}

// Pick is a resolved intent together with the server to connect to.
type Pick struct {
	Result
	Server catalog.Server
}

// Resolver decides which intent to connect with. It is safe for concurrent use.
type Resolver struct {
	src     IndexSource
	maxTier catalog.Tier
	home    intent.CountryID
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxTier limits resolution to servers the user's plan allows.
func WithMaxTier(t catalog.Tier) Option {
	return func(r *Resolver) { r.maxTier = t }
}

// WithHomeCountry sets the country FastestExcludingHome avoids.
func WithHomeCountry(c intent.CountryID) Option {
	return func(r *Resolver) { r.home = c }
}

// New returns a resolver over src. Without WithMaxTier every tier is usable.
func New(src IndexSource, opts ...Option) *Resolver {
	r := &Resolver{src: src, maxTier: catalog.TierInternal}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns in itself when an online server allowed by the plan matches it, and
// otherwise the first generalization that has one. When even Fastest has no server and
// the catalog has no countries, the first connectable gateway is returned; failing that
// Fastest comes back flagged Unsatisfiable.
func (r *Resolver) Resolve(ctx context.Context, in intent.ConnectIntent) (Result, error) {
	return r.resolve(ctx, r.src.Index(), in)
}

func (r *Resolver) resolve(ctx context.Context, ix *servers.Index, in intent.ConnectIntent) (Result, error) {
	cur := in
	step := 0
	for ; step <= intent.MaxGeneralizationSteps; step++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if ix.Satisfiable(cur, r.maxTier, r.home) {
			if step > 0 {
				resolverLog.Debug("intent_generalized",
					slog.String("from", in.String()),
					slog.String("to", cur.String()),
					slog.Int("steps", step))
			}
			return Result{Intent: cur, Steps: step}, nil
		}
		if intent.IsDefault(cur) {
			break
		}
		cur = intent.OneStepUp(cur)
	}

	if !hasCountries(ix) {
		if gw, ok := r.firstGateway(ix); ok {
			resolverLog.Info("intent_gateway_fallback", slog.String("from", in.String()), slog.String("gateway", gw.GatewayName))
			return Result{Intent: gw, Steps: step + 1}, nil
		}
	}
	resolverLog.Warn("intent_unsatisfiable",
		slog.String("intent", in.String()),
		slog.Uint64("catalog_version", ix.Version()),
		slog.Int("servers", ix.Snapshot().Len()))
	return Result{Intent: intent.Fastest(), Steps: step, Unsatisfiable: true}, nil
}

// Default returns the intent used when the user has not chosen one: Fastest when it can
// connect, otherwise the first connectable gateway, otherwise Fastest flagged Unsatisfiable.
func (r *Resolver) Default(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	ix := r.src.Index()
	if ix.Satisfiable(intent.Fastest(), r.maxTier, r.home) {
		return Result{Intent: intent.Fastest()}, nil
	}
	if gw, ok := r.firstGateway(ix); ok {
		return Result{Intent: gw}, nil
	}
	return Result{Intent: intent.Fastest(), Unsatisfiable: true}, nil
}

// Pick resolves in and chooses the best server for the result.
func (r *Resolver) Pick(ctx context.Context, in intent.ConnectIntent) (Pick, error) {
	ix := r.src.Index()
	res, err := r.resolve(ctx, ix, in)
	if err != nil {
		return Pick{}, err
	}
	p := Pick{Result: res}
	if res.Unsatisfiable {
		return p, nil
	}
	if s, ok := ix.BestServer(res.Intent, r.maxTier, r.home); ok {
		p.Server = s
	}
	return p, nil
}

// Availability classifies in against the current catalog for the configured plan.
func (r *Resolver) Availability(in intent.ConnectIntent) servers.Availability {
	return r.src.Index().Availability(in, r.maxTier, r.home)
}

func (r *Resolver) firstGateway(ix *servers.Index) (intent.Gateway, bool) {
	for _, g := range ix.Gateways() {
		gw := intent.Gateway{GatewayName: g.Name}
		if ix.Satisfiable(gw, r.maxTier, r.home) {
			return gw, true
		}
	}
	return intent.Gateway{}, false
}

func hasCountries(ix *servers.Index) bool {
	for _, f := range servers.FilterTypes {
		if len(ix.Countries(f)) > 0 {
			return true
		}
	}
	return false
}
