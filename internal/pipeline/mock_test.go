package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/reel-importer/internal/assets"
	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/pricing"
	"github.com/sells-group/reel-importer/pkg/catalog"
)

// --- Catalog Mock ---

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Login(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockCatalog) Upload(ctx context.Context, token, localPath, key string) (string, error) {
	args := m.Called(ctx, token, localPath, key)
	return args.String(0), args.Error(1)
}

func (m *mockCatalog) Upsert(ctx context.Context, token string, products []model.ProductRecord) (*catalog.UpsertResult, error) {
	args := m.Called(ctx, token, products)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.UpsertResult), args.Error(1)
}

func (m *mockCatalog) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

// --- Resolver Fake ---

type fakeResolver struct {
	retail   map[string]decimal.Decimal
	supplier map[string]decimal.Decimal
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		retail:   map[string]decimal.Decimal{},
		supplier: map[string]decimal.Decimal{},
	}
}

func (f *fakeResolver) ResolveRetail(_ context.Context, rawURL string) (*model.PriceQuote, error) {
	amt, ok := f.retail[rawURL]
	if !ok {
		return nil, eris.New("pricing: retail unresolved")
	}
	return &model.PriceQuote{
		Amount:    amt,
		Shipping:  decimal.Zero,
		SourceURL: rawURL,
		Source:    model.SourcePage,
		Images:    []string{rawURL + "/img1.jpg"},
	}, nil
}

func (f *fakeResolver) ResolveSupplier(_ context.Context, q pricing.SupplierQuery) (*model.BestQuote, error) {
	for _, u := range q.URLs {
		if amt, ok := f.supplier[u]; ok {
			return &model.BestQuote{
				Quote: model.PriceQuote{
					Amount:         amt,
					Shipping:       decimal.Zero,
					ShippingPolicy: model.ShippingParsed,
					SourceURL:      u,
					Source:         model.SourcePage,
				},
				Considered: len(q.URLs),
			}, nil
		}
	}
	return nil, eris.New("pricing: supplier unresolved")
}

// --- Producer Fake ---

type fakeProducer struct {
	mu        sync.Mutex
	err       error
	dirs      []string
	produced  []string
	galleries [][]string
}

func (f *fakeProducer) Produce(_ context.Context, cand model.Candidate, workDir string, gallery []string) (*assets.Bundle, error) {
	f.mu.Lock()
	f.dirs = append(f.dirs, workDir)
	f.produced = append(f.produced, cand.Label())
	f.galleries = append(f.galleries, gallery)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	still := filepath.Join(workDir, "main.jpg")
	gif := filepath.Join(workDir, "gif-1.gif")
	for _, p := range []string{still, gif} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			return nil, err
		}
	}
	return &assets.Bundle{
		Still:  still,
		Clips:  []model.EncodedClip{{Path: gif, SizeBytes: 1}},
		Policy: "scored",
	}, nil
}

// --- Ledger Fake ---

type fakeLedger struct {
	mu        sync.Mutex
	createErr error
	runs      map[string]*model.Run
	outcomes  map[string][]model.Outcome
	submitted map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		runs:      map[string]*model.Run{},
		outcomes:  map[string][]model.Outcome{},
		submitted: map[string]bool{},
	}
}

func (f *fakeLedger) CreateRun(_ context.Context) (*model.Run, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &model.Run{ID: uuid.NewString(), Status: model.RunStatusRunning}
	f.runs[r.ID] = r
	return r, nil
}

func (f *fakeLedger) FinishRun(_ context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[runID]
	if !ok {
		return eris.New("unknown run")
	}
	r.Status = status
	r.Summary = summary
	return nil
}

func (f *fakeLedger) RecordOutcome(_ context.Context, runID string, o model.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[runID] = append(f.outcomes[runID], o)
	return nil
}

func (f *fakeLedger) WasSubmitted(_ context.Context, externalID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[externalID], nil
}
