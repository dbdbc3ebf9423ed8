package pingdom

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/model"
)

type checkJSON struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Hostname         string `json:"hostname"`
	Status           string `json:"status"`
	LastResponseTime int64  `json:"lastresponsetime"`
}

type recipeJSON struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Kitchen string `json:"kitchen"`
}

type summaryJSON struct {
	Summary struct {
		States []json.RawMessage `json:"states"`
		Hours  []json.RawMessage `json:"hours"`
	} `json:"summary"`
}

func (c *Client) tagParams() url.Values {
	params := url.Values{}
	if len(c.cfg.Tags) > 0 {
		params.Set("tags", strings.Join(c.cfg.Tags, ","))
	}
	return params
}

// ListChecks returns the uptime checks matching the configured tags and name regex
func (c *Client) ListChecks(ctx context.Context) ([]model.Entity, error) {
	params := c.tagParams()
	params.Set("showencryption", "true")
	params.Set("include_tags", "true")
	params.Set("include_severity", "true")

	var body struct {
		Checks []checkJSON `json:"checks"`
	}
	if err := c.get(ctx, false, "checks", params, &body); err != nil {
		return nil, err
	}

	var checks []model.Entity
	for _, ch := range body.Checks {
		if !c.nameFilter.MatchString(ch.Name) {
			continue
		}
		checks = append(checks, model.Entity{
			Kind:             model.KindCheck,
			ID:               ch.ID,
			Name:             ch.Name,
			Hostname:         ch.Hostname,
			Status:           ch.Status,
			LastResponseTime: ch.LastResponseTime,
		})
	}
	return checks, nil
}

// ListTransactions returns the transaction monitors matching the configured
// tags and name regex. The legacy API keys recipes by id.
func (c *Client) ListTransactions(ctx context.Context) ([]model.Entity, error) {
	if !c.cfg.IncludeTransactions {
		return nil, nil
	}

	var body struct {
		Recipes map[string]recipeJSON `json:"recipes"`
	}
	if err := c.get(ctx, true, "tms.recipes", c.tagParams(), &body); err != nil {
		return nil, err
	}

	var tms []model.Entity
	for key, r := range body.Recipes {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			c.logger.Warn("skipping transaction monitor with invalid id", "id", key)
			continue
		}
		if !c.nameFilter.MatchString(r.Name) {
			continue
		}
		tms = append(tms, model.Entity{
			Kind:   model.KindTransaction,
			ID:     id,
			Name:   r.Name,
			Group:  r.Kitchen,
			Status: r.Status,
		})
	}
	sort.Slice(tms, func(i, j int) bool { return tms[i].ID < tms[j].ID })
	return tms, nil
}

// ListProbes returns every probe server
func (c *Client) ListProbes(ctx context.Context) ([]model.Probe, error) {
	var body struct {
		Probes []model.Probe `json:"probes"`
	}
	if err := c.get(ctx, false, "probes", nil, &body); err != nil {
		return nil, err
	}
	return body.Probes, nil
}

// Fetch returns the records of one category for an entity starting at since
func (c *Client) Fetch(ctx context.Context, kind model.EntityKind, cat model.Category, id int64, since int64) ([]model.RawResult, error) {
	switch {
	case kind == model.KindCheck && cat == model.CategoryResults:
		return c.fetchResults(ctx, id, since)
	case kind == model.KindCheck && cat == model.CategoryOutage:
		return c.fetchSummary(ctx, false, entityPath("summary.outage", id), since, outageStates)
	case kind == model.KindCheck && cat == model.CategoryPerformance:
		return c.fetchSummary(ctx, false, entityPath("summary.performance", id), since, performanceHours)
	case kind == model.KindTransaction && cat == model.CategoryOutage:
		return c.fetchSummary(ctx, true, entityPath("tms.summary.outage", id), since, outageStates)
	case kind == model.KindTransaction && cat == model.CategoryPerformance:
		return c.fetchSummary(ctx, true, entityPath("tms.summary.performance", id), since, performanceHours)
	default:
		return nil, errors.UpstreamFatal(errors.Newf("no %s data for %s %d", cat, kind, id))
	}
}

// fetchResults pages through raw results until a short page or the page cap
func (c *Client) fetchResults(ctx context.Context, id, since int64) ([]model.RawResult, error) {
	limit := c.cfg.ResultsLimit
	var out []model.RawResult

	for page := 0; page < c.cfg.ResultsMaxPages; page++ {
		params := url.Values{}
		params.Set("from", strconv.FormatInt(since, 10))
		params.Set("limit", strconv.Itoa(limit))
		params.Set("offset", strconv.Itoa(page*limit))

		var body struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := c.get(ctx, false, entityPath("results", id), params, &body); err != nil {
			return nil, err
		}

		out = append(out, c.records(body.Results)...)
		if len(body.Results) < limit {
			break
		}
	}
	return out, nil
}

type summarySection func(summaryJSON) []json.RawMessage

func outageStates(s summaryJSON) []json.RawMessage     { return s.Summary.States }
func performanceHours(s summaryJSON) []json.RawMessage { return s.Summary.Hours }

func (c *Client) fetchSummary(ctx context.Context, legacy bool, path string, since int64, section summarySection) ([]model.RawResult, error) {
	params := url.Values{}
	params.Set("from", strconv.FormatInt(since, 10))

	var body summaryJSON
	if err := c.get(ctx, legacy, path, params, &body); err != nil {
		return nil, err
	}
	return c.records(section(body)), nil
}

// records decodes each element into a field map. Elements that are not JSON
// objects are skipped.
func (c *Client) records(raw []json.RawMessage) []model.RawResult {
	out := make([]model.RawResult, 0, len(raw))
	for _, r := range raw {
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.UseNumber()
		var fields map[string]any
		if err := dec.Decode(&fields); err != nil || fields == nil {
			c.logger.Debug("skipping non-object record", "record", string(r))
			continue
		}
		out = append(out, model.RawResult{Fields: fields})
	}
	return out
}
