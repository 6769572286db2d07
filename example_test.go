package stagemetrics_test

import (
	"context"
	"fmt"
	"log"
	"time"

	sm "github.com/thought-machine/stagemetrics"
)

var exampleStart = time.UnixMilli(1_700_000_000_000)

var graphBuildAndTest = sm.Must(sm.NewGraph(
	sm.Node{
		ID:        "3",
		Kind:      sm.BlockStartNode,
		StartTime: exampleStart,
		Step:      &sm.Step{FunctionName: "stage", Arguments: map[string]any{"name": "Build"}},
	},
	sm.Node{
		ID:   "4",
		Step: &sm.Step{FunctionName: "withEnv", Arguments: map[string]any{"overrides": []string{"BUILD_TOOL=maven"}}},
	},
	sm.Node{ID: "5", Kind: sm.BlockEndNode, StartID: "3", StartTime: exampleStart.Add(1500 * time.Millisecond)},
	sm.Node{
		ID:        "6",
		Kind:      sm.BlockStartNode,
		StartTime: exampleStart.Add(2 * time.Second),
		Step:      &sm.Step{FunctionName: "stage", Arguments: map[string]any{"name": "Test"}},
	},
	sm.Node{
		ID:    "7",
		Error: &sm.NodeError{Message: "3 tests failed"},
		Step:  &sm.Step{FunctionName: "sh", Arguments: map[string]any{"label": "unit tests"}},
	},
	sm.Node{ID: "8", Kind: sm.BlockEndNode, StartID: "6", StartTime: exampleStart.Add(2750 * time.Millisecond)},
))

func Example() {
	res, err := sm.Analyze(context.Background(), graphBuildAndTest)
	if err != nil {
		log.Fatal(err)
	}
	for _, m := range res.Stages {
		fmt.Printf("%s %s %dms %q %v\n", m.Name, m.Status, m.DurationMillis, m.BuildTool, m.ShellLabels)
	}

	// Output:
	// Build SUCCESS 1500ms "maven" []
	// Test FAILURE 750ms "" [unit tests]
}
