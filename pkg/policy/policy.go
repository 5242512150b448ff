package policy

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// Query is the rule set evaluated for every relative, e.g.
//
//	package match
//
//	flag if { input.relative.living; not input.relative.public }
//	message := "Private Living"
const Query = "data.match"

type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Engine evaluates curator criteria written in Rego against relatives met
// during a match crawl.
type Engine struct {
	query *rego.PreparedEvalQuery
}

// New loads the policies in dir. An engine without policy files flags
// nothing.
func New(ctx context.Context, dir string) (*Engine, error) {
	modules, err := loadModules(dir)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		logging.From(ctx).Warn("no policy file found", "dir", dir)
		return &Engine{}, nil
	}

	query, err := prepareQuery(ctx, modules, Query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare match policy", goerr.V("dir", dir))
	}
	return &Engine{query: query}, nil
}

// Input is what a policy sees as `input`.
type Input struct {
	Relative   *model.Relative
	Relation   string
	Generation int
}

// Verdict is the outcome of a policy evaluation.
type Verdict struct {
	Flag    bool
	Message model.Message
}

func (e *Engine) Evaluate(ctx context.Context, in Input) (*Verdict, error) {
	if e == nil || e.query == nil || in.Relative == nil {
		return &Verdict{}, nil
	}

	rs, err := e.query.Eval(ctx,
		rego.EvalInput(toInput(in)),
		rego.EvalPrintHook(&printHook{ctx: ctx}),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate match policy", goerr.V("id", in.Relative.ID))
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &Verdict{}, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("invalid match policy result", goerr.V("value", rs[0].Expressions[0].Value))
	}

	flag, _ := data["flag"].(bool)
	if !flag {
		return &Verdict{}, nil
	}

	msg := model.MessagePolicyMatch
	if s, ok := data["message"].(string); ok && s != "" {
		msg = model.Message(s)
	}
	return &Verdict{Flag: true, Message: msg}, nil
}

func toInput(in Input) map[string]any {
	r := in.Relative
	projects := make([]any, 0, len(r.Projects))
	for _, p := range r.Projects {
		projects = append(projects, p)
	}

	return map[string]any{
		"relation":   in.Relation,
		"generation": in.Generation,
		"relative": map[string]any{
			"id":            string(r.ID),
			"name":          r.Name,
			"gender":        string(r.Gender),
			"role":          string(r.Role),
			"adopted":       r.Adopted,
			"master":        r.Master,
			"claimed":       r.Claimed,
			"public":        r.Public,
			"living":        r.Living,
			"merge_pending": r.MergePending,
			"message":       string(r.Message),
			"projects":      projects,
			"birth":         toEvent(r.Birth),
			"death":         toEvent(r.Death),
		},
	}
}

func toEvent(ev model.Event) map[string]any {
	return map[string]any{
		"date":      ev.Date,
		"qualifier": ev.Qualifier,
		"location":  ev.Location,
		"state":     ev.State,
		"country":   ev.Country,
	}
}
