package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/ehr/codeassist/internal/domain/terminology"
)

// LookupResult is the outcome of one type-ahead query. A Stale result was
// overtaken by a newer query or a workspace change and was not applied.
type LookupResult struct {
	Seq    uint64              `json:"seq"`
	Query  string              `json:"query"`
	System terminology.System  `json:"system"`
	Codes  []*terminology.Code `json:"codes"`
	Stale  bool                `json:"stale"`
}

// Lookup searches the code dictionary for the manual-entry suggestions.
// Each call supersedes the previous one: a query that is overtaken while it
// waits out the debounce never reaches the dictionary, and one overtaken
// while the search runs is returned Stale and leaves the suggestions alone.
// Lookups do not take the in-flight flag.
func (c *Controller) Lookup(ctx context.Context, system terminology.System, query string) (LookupResult, error) {
	query = strings.TrimSpace(query)

	c.mu.Lock()
	c.st.lookupSeq++
	seq, epoch := c.st.lookupSeq, c.st.epoch
	if query == "" || c.searcher == nil {
		c.st.lookup = LookupResult{Seq: seq, System: system, Codes: []*terminology.Code{}}
		res := c.st.lookup
		c.mu.Unlock()
		return res, nil
	}
	c.mu.Unlock()

	stale := LookupResult{Seq: seq, Query: query, System: system, Codes: []*terminology.Code{}, Stale: true}

	if c.debounce > 0 {
		timer := time.NewTimer(c.debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return stale, ctx.Err()
		case <-timer.C:
		}
	}
	if !c.current(seq, epoch) {
		return stale, nil
	}

	codes, err := c.searcher.Search(ctx, system, query, c.searchLimit)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.st.lookupSeq || epoch != c.st.epoch {
		c.logger.Debug().Uint64("seq", seq).Str("query", query).Msg("dropping superseded lookup")
		return stale, nil
	}
	if err != nil {
		c.st.lookup = LookupResult{Seq: seq, Query: query, System: system, Codes: []*terminology.Code{}}
		return c.st.lookup, &ExternalCallError{Op: "lookup", Err: err}
	}
	if codes == nil {
		codes = []*terminology.Code{}
	}
	c.st.lookup = LookupResult{Seq: seq, Query: query, System: system, Codes: codes}
	return c.st.lookup, nil
}

func (c *Controller) current(seq, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq == c.st.lookupSeq && epoch == c.st.epoch
}
