package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults for Options fields left zero.
const (
	DefaultDebounce      = 200 * time.Millisecond
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 50 * time.Millisecond
)

// SearchTypeMatchAny is the editor search mode used by linked-record editors.
const SearchTypeMatchAny = "matchAny"

// Editor is the live view of an open linked-record editor.
type Editor interface {
	// SearchTerm returns the text currently typed into the editor.
	SearchTerm() string
	// SetCandidates replaces the editor's option list.
	SetCandidates([]Candidate)
	// LinkedDataset names the dataset the editor looks up.
	LinkedDataset() string
}

// EditorRegistry finds the open editor for a node, if any.
type EditorRegistry interface {
	Editor(nodeID string) (Editor, bool)
}

// EditorOptions configure a freshly opened linked-record editor.
type EditorOptions struct {
	Values         []Candidate `json:"values"`
	AllowTyping    bool        `json:"allowTyping"`
	FilterList     bool        `json:"filterList"`
	HighlightMatch bool        `json:"highlightMatch"`
	SearchType     string      `json:"searchType"`
}

// Options configures a Poller.
type Options struct {
	// Debounce is the interval between search term checks.
	Debounce time.Duration
	// RetryAttempts is the number of tries per term before giving up.
	RetryAttempts int
	// RetryBackoff is the delay before the first retry; it doubles per try.
	RetryBackoff time.Duration
	Logger       *slog.Logger
	// After replaces time.After, mainly for tests.
	After func(time.Duration) <-chan time.Time
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.After == nil {
		o.After = time.After
	}
	return o
}

// chain is one node's refresh loop.
type chain struct {
	nodeID string
	cancel context.CancelFunc
	done   chan struct{}
	prev   *chain // replaced chain, waited on before the first tick
}

// Poller runs debounced refresh chains for open linked-record editors.
// At most one chain is active per node; scheduling a new chain for a node
// replaces the old one. Safe for concurrent use.
type Poller struct {
	transport Transport
	editors   EditorRegistry
	opts      Options
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	chains  map[string]*chain
	stopped bool
	wg      sync.WaitGroup
}

// NewPoller creates a poller over the given transport and editor registry.
func NewPoller(transport Transport, editors EditorRegistry, opts Options) *Poller {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		transport: transport,
		editors:   editors,
		opts:      opts,
		logger:    opts.Logger.With("component", "lookup"),
		ctx:       ctx,
		cancel:    cancel,
		chains:    make(map[string]*chain),
	}
}

// OpenEditor fetches the full candidate list for dataset and, once it has
// arrived, starts the refresh chain for nodeID. The returned options carry
// the candidates so the editor is never empty on first render.
func (p *Poller) OpenEditor(ctx context.Context, nodeID, dataset string) (EditorOptions, error) {
	cands, err := p.transport.FetchAll(ctx, dataset)
	if err != nil {
		return EditorOptions{}, fmt.Errorf("initial lookup for %s: %w", dataset, err)
	}
	if cands == nil {
		cands = []Candidate{}
	}

	p.ScheduleRefresh(nodeID, "")

	return EditorOptions{
		Values:         cands,
		AllowTyping:    true,
		FilterList:     true,
		HighlightMatch: true,
		SearchType:     SearchTypeMatchAny,
	}, nil
}

// ScheduleRefresh starts a refresh chain for nodeID with previousTerm as the
// last observed term. Any existing chain for the node is cancelled.
func (p *Poller) ScheduleRefresh(nodeID, previousTerm string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	ctx, cancel := context.WithCancel(p.ctx)
	c := &chain{
		nodeID: nodeID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if old, ok := p.chains[nodeID]; ok {
		old.cancel()
		c.prev = old
	}
	p.chains[nodeID] = c

	p.wg.Add(1)
	go p.run(ctx, c, previousTerm)
}

// CloseEditor cancels the refresh chain for nodeID, if any.
func (p *Poller) CloseEditor(nodeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.chains[nodeID]; ok {
		c.cancel()
		delete(p.chains, nodeID)
	}
}

// Active returns the number of running chains.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chains)
}

// Stop cancels every chain and waits for them to exit. Further
// ScheduleRefresh calls are ignored.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.cancel()
	for id := range p.chains {
		delete(p.chains, id)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, c *chain, prev string) {
	defer p.finish(c)

	// The replaced chain was cancelled; let it drain so results for one
	// node are never applied out of order.
	if c.prev != nil {
		<-c.prev.done
		c.prev = nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.opts.After(p.opts.Debounce):
		}
		if ctx.Err() != nil {
			return
		}

		ed, ok := p.editors.Editor(c.nodeID)
		if !ok {
			p.logger.Debug("editor gone, ending refresh", "node", c.nodeID)
			return
		}

		term := ed.SearchTerm()
		if term == prev {
			continue
		}

		dataset := ed.LinkedDataset()
		cands, err := p.search(ctx, dataset, term)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Warn("lookup refresh failed",
				"node", c.nodeID,
				"dataset", dataset,
				"term", term,
				"error", err,
			)
			prev = term
			continue
		}
		if cands == nil {
			cands = []Candidate{}
		}
		ed.SetCandidates(cands)
		prev = term
	}
}

// search queries the transport, retrying with exponential backoff.
func (p *Poller) search(ctx context.Context, dataset, term string) ([]Candidate, error) {
	var lastErr error
	backoff := p.opts.RetryBackoff

	for attempt := 1; attempt <= p.opts.RetryAttempts; attempt++ {
		cands, err := p.transport.Search(ctx, dataset, term)
		if err == nil {
			return cands, nil
		}
		lastErr = err

		if attempt == p.opts.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.opts.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("after %d attempts: %w", p.opts.RetryAttempts, lastErr)
}

func (p *Poller) finish(c *chain) {
	p.mu.Lock()
	if cur, ok := p.chains[c.nodeID]; ok && cur == c {
		delete(p.chains, c.nodeID)
	}
	p.mu.Unlock()

	close(c.done)
	p.wg.Done()
}
