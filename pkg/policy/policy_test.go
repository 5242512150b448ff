package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/policy"
)

func writePolicy(t *testing.T, src string) string {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "match.rego"), []byte(src), 0644))
	return dir
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	dir := writePolicy(t, `package match

default flag := false

flag if {
	input.relative.living
	not input.relative.public
}

flag if {
	input.generation > 3
	input.relative.birth.country == "Ireland"
}

message := "Private Living" if {
	input.relative.living
}
`)

	engine, err := policy.New(ctx, dir)
	gt.NoError(t, err)

	testCases := []struct {
		name    string
		in      policy.Input
		flag    bool
		message model.Message
	}{
		{
			name: "private living relative",
			in: policy.Input{
				Relative: &model.Relative{ID: "a", Living: true, Public: false},
			},
			flag:    true,
			message: "Private Living",
		},
		{
			name: "public living relative",
			in: policy.Input{
				Relative: &model.Relative{ID: "b", Living: true, Public: true},
			},
			flag: false,
		},
		{
			name: "default message",
			in: policy.Input{
				Relative:   &model.Relative{ID: "c", Public: true, Birth: model.Event{Country: "Ireland"}},
				Relation:   "3rd great grandfather",
				Generation: 4,
			},
			flag:    true,
			message: model.MessagePolicyMatch,
		},
		{
			name: "shallow generation",
			in: policy.Input{
				Relative:   &model.Relative{ID: "d", Public: true, Birth: model.Event{Country: "Ireland"}},
				Generation: 1,
			},
			flag: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := engine.Evaluate(ctx, tc.in)
			gt.NoError(t, err)
			gt.Equal(t, v.Flag, tc.flag)
			gt.Equal(t, v.Message, tc.message)
		})
	}
}

func TestEmptyPolicyDir(t *testing.T) {
	ctx := context.Background()
	engine, err := policy.New(ctx, t.TempDir())
	gt.NoError(t, err)

	v, err := engine.Evaluate(ctx, policy.Input{Relative: &model.Relative{ID: "a"}})
	gt.NoError(t, err)
	gt.False(t, v.Flag)
}

func TestBrokenPolicy(t *testing.T) {
	dir := writePolicy(t, "package match\n\nflag if {\n")
	_, err := policy.New(context.Background(), dir)
	gt.Error(t, err)
}
