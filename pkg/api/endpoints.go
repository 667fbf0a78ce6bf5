package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/rostersync/pkg/importer"
	"github.com/hazyhaar/rostersync/pkg/kit"
	"github.com/hazyhaar/rostersync/pkg/ledger"
	"github.com/hazyhaar/rostersync/pkg/names"
	"github.com/hazyhaar/rostersync/pkg/reconcile"
	"github.com/hazyhaar/rostersync/pkg/stage"
)

// Shared request/response types used by both HTTP and MCP transports.

type reconcileReq struct {
	Source  string
	Records []importer.Record
	DryRun  bool
	Redact  bool
}

type deriveReq struct {
	Record importer.Record
}

type decideReq struct {
	Current string         `json:"current"`
	Derived string         `json:"derived"`
	Options []stage.Option `json:"options,omitempty"`
}

type normalizeReq struct {
	Text string `json:"text"`
	// Role forces "organization" or "person"; empty classifies the text.
	Role string `json:"role,omitempty"`
}

type normalizeResponse struct {
	Base       string   `json:"base"`
	Role       string   `json:"role"`
	Source     string   `json:"source"`
	OrgKey     string   `json:"org_key"`
	PersonKeys []string `json:"person_keys"`
	Keys       []string `json:"keys"`
}

type listRunsReq struct {
	Limit int `json:"limit"`
}

type runsResponse struct {
	Runs []ledger.Run `json:"runs"`
}

type runResponse struct {
	Run     ledger.Run            `json:"run"`
	Results []reconcile.RowResult `json:"results"`
}

var (
	// errNoLedger means run history is not available.
	errNoLedger = errors.New("run ledger not configured")
	errBadLimit = errors.New("limit too large")
)

// Endpoints are built over the server so that a reloaded engine is picked up
// on the next call.

func reconcileEndpoint(s *Server) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*reconcileReq)
		report, err := s.Engine().Run(ctx, req.Source, req.Records, reconcile.RunOptions{DryRun: req.DryRun})
		if err != nil {
			return nil, err
		}
		if req.Redact {
			return report.Redacted(), nil
		}
		return report, nil
	}
}

func deriveEndpoint(s *Server) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*deriveReq)
		return s.Engine().Deriver.Derive(req.Record), nil
	}
}

func decideEndpoint(s *Server) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*decideReq)
		var r *stage.OptionResolver
		if len(req.Options) > 0 {
			r = stage.NewOptionResolver(req.Options, nil)
		}
		return s.Engine().Gate.Decide(req.Current, req.Derived, r), nil
	}
}

func normalizeEndpoint(s *Server) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*normalizeReq)
		if strings.TrimSpace(req.Text) == "" {
			return nil, errors.New("text is empty")
		}
		e := s.Engine()
		c := e.Classifier.ClassifyName(req.Text)
		role, source := c.Role, string(c.Source)
		switch strings.ToLower(strings.TrimSpace(req.Role)) {
		case "":
		case "organization", "org":
			role, source = names.Organization, "request"
		case "person":
			role, source = names.Person, "request"
		default:
			return nil, fmt.Errorf("unknown role %q", req.Role)
		}
		return normalizeResponse{
			Base:       names.Base(req.Text),
			Role:       role.String(),
			Source:     source,
			OrgKey:     e.Normalizer.OrgKey(req.Text),
			PersonKeys: e.Normalizer.PersonKeys(req.Text),
			Keys:       e.Normalizer.Keys(req.Text, role),
		}, nil
	}
}

func listRunsEndpoint(s *Server) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if s.runs == nil {
			return nil, errNoLedger
		}
		req := request.(*listRunsReq)
		if req.Limit > 500 {
			return nil, fmt.Errorf("%w (max 500, got %d)", errBadLimit, req.Limit)
		}
		runs, err := s.runs.ListRuns(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		if runs == nil {
			runs = []ledger.Run{}
		}
		return runsResponse{Runs: runs}, nil
	}
}
