package main

import (
	"context"
	"encoding/json"

	"github.com/hupe1980/journalmesh/codec"
	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/journal"
	"github.com/hupe1980/journalmesh/model"
	"github.com/hupe1980/journalmesh/supervisor"
)

// demoModel plays a fixed conversation without a provider: the coordinator
// saves the message as an entry and asks the emotion specialist about it,
// then answers with a reflection action.
type demoModel struct{}

func newDemoModel() model.Model { return demoModel{} }

func (demoModel) Info() model.Info {
	return model.Info{Name: "demo", Provider: "scripted", SupportsTools: true}
}

func (d demoModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	return model.NewScriptedModel("demo").Otherwise(d.turn(req)).Generate(ctx, req)
}

func (demoModel) turn(req model.Request) model.Turn {
	if !offersTool(req, supervisor.DelegateToolName) {
		return model.Turn{Text: "The entry reads calm and reflective, with a hint of fatigue."}
	}

	if n := len(req.Contents); n > 0 && req.Contents[n-1].Role == core.RoleTool {
		text, err := codec.Encode(
			"Thanks for sharing. I saved your note; it sounds calm and reflective, with a hint of fatigue.",
			&codec.Block{Action: "reflection", Data: map[string]any{"mood": "calm"}},
		)
		if err != nil {
			return model.Turn{Err: err}
		}
		return model.Turn{Text: text}
	}

	message := lastUserText(req.Contents)
	create, _ := json.Marshal(map[string]string{"title": "Quick note", "content": message})
	delegate, _ := json.Marshal(map[string]string{"agent": core.Emotion.String(), "input": message})

	return model.Turn{Calls: []core.FunctionCall{
		{ID: "demo_create", Name: journal.ToolCreateJournal, Arguments: string(create)},
		{ID: "demo_delegate", Name: supervisor.DelegateToolName, Arguments: string(delegate)},
	}}
}

func offersTool(req model.Request, name string) bool {
	for _, t := range req.Tools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}

func lastUserText(contents []core.Content) string {
	for i := len(contents) - 1; i >= 0; i-- {
		if contents[i].Role == core.RoleUser {
			return contents[i].Text()
		}
	}
	return ""
}
