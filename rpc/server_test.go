package rpc

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/corpuslab/caret"
)

func mustServer(t *testing.T, lines string) *Server {
	t.Helper()
	ds, err := caret.FromBytes([]byte(lines), "test.jsonl", caret.FormatJSONL, caret.Config{})
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	return NewServer(ds, "test.jsonl", 2)
}

func TestHandleInitialize(t *testing.T) {
	s := mustServer(t, "{}\n")
	resp := s.handleInitialize(json.RawMessage(`1`))

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(initializeResult)
	if !ok {
		t.Fatalf("Result type = %T, want initializeResult", resp.Result)
	}
	if result.ProtocolVersion != protocolVersion {
		t.Errorf("ProtocolVersion = %q, want %q", result.ProtocolVersion, protocolVersion)
	}
	if result.ServerInfo.Name != "caret" {
		t.Errorf("ServerInfo.Name = %q, want %q", result.ServerInfo.Name, "caret")
	}
}

func TestHandleToolsListReturnsFourTools(t *testing.T) {
	s := mustServer(t, "{}\n")
	resp := s.handleToolsList(json.RawMessage(`1`))

	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("Result type = %T, want map[string]any", resp.Result)
	}
	tools, ok := result["tools"].([]toolDescriptor)
	if !ok {
		t.Fatalf("tools type = %T", result["tools"])
	}
	if len(tools) != 4 {
		t.Fatalf("len(tools) = %d, want 4", len(tools))
	}

	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"search_dataset", "dataset_info", "get_lines", "dedup_scan"} {
		if !names[want] {
			t.Errorf("missing tool %q in tools/list", want)
		}
	}
}

func TestHandleToolsCallUnknownToolReturnsInvalidParams(t *testing.T) {
	s := mustServer(t, "{}\n")
	params, _ := json.Marshal(toolCallParams{Name: "not_a_real_tool"})
	resp := s.handleToolsCall(json.RawMessage(`1`), params)

	if resp.Error == nil {
		t.Fatal("expected an error for an unknown tool")
	}
	if resp.Error.Code != codeInvalidParams {
		t.Errorf("Error.Code = %d, want %d", resp.Error.Code, codeInvalidParams)
	}
}

func TestHandleToolsCallSearchDatasetMissingQuery(t *testing.T) {
	s := mustServer(t, "{}\n")
	params, _ := json.Marshal(toolCallParams{Name: "search_dataset", Arguments: json.RawMessage(`{}`)})
	resp := s.handleToolsCall(json.RawMessage(`1`), params)

	if resp.Error == nil {
		t.Fatal("expected an error for a missing query parameter")
	}
	if resp.Error.Code != codeInvalidParams {
		t.Errorf("Error.Code = %d, want %d", resp.Error.Code, codeInvalidParams)
	}
}

func TestHandleToolsCallSearchDatasetFindsMatch(t *testing.T) {
	s := mustServer(t, "{\"content\":\"alpha\"}\n{\"content\":\"beta\"}\n")
	args, _ := json.Marshal(map[string]any{"query": "beta"})
	params, _ := json.Marshal(toolCallParams{Name: "search_dataset", Arguments: args})
	resp := s.handleToolsCall(json.RawMessage(`1`), params)

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result := resp.Result.(map[string]any)
	blocks := result["content"].([]contentBlock)
	if len(blocks) != 1 || !strings.Contains(blocks[0].Text, "beta") {
		t.Errorf("search result = %+v, want text containing 'beta'", blocks)
	}
}

func TestHandleToolsCallSearchDatasetEmitsJumpToLineCommand(t *testing.T) {
	s := mustServer(t, "{\"content\":\"alpha\"}\n{\"content\":\"beta\"}\n")
	args, _ := json.Marshal(map[string]any{"query": "beta"})
	params, _ := json.Marshal(toolCallParams{Name: "search_dataset", Arguments: args})
	if resp := s.handleToolsCall(json.RawMessage(`1`), params); resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	cmd, ok := s.Commands().TryRecv()
	if !ok {
		t.Fatal("expected a queued command after a matching search")
	}
	if cmd.Kind != caret.CommandJumpToLine || cmd.Line != 1 {
		t.Errorf("command = %+v, want CommandJumpToLine at line 1", cmd)
	}
}

func TestHandleToolsCallSearchDatasetInvalidRegex(t *testing.T) {
	s := mustServer(t, "{}\n")
	args, _ := json.Marshal(map[string]any{"query": "("})
	params, _ := json.Marshal(toolCallParams{Name: "search_dataset", Arguments: args})
	resp := s.handleToolsCall(json.RawMessage(`1`), params)

	if resp.Error == nil {
		t.Fatal("expected an error for an invalid regex")
	}
	if resp.Error.Code != codeInternalError {
		t.Errorf("Error.Code = %d, want %d", resp.Error.Code, codeInternalError)
	}
}

func TestHandleToolsCallDatasetInfo(t *testing.T) {
	s := mustServer(t, "a\nb\nc\n")
	resp := s.handleToolsCall(json.RawMessage(`1`), mustParams(t, "dataset_info", nil))

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result := resp.Result.(map[string]any)
	metadata := result["metadata"].(map[string]any)
	if metadata["line_count"] != 3 {
		t.Errorf("line_count = %v, want 3", metadata["line_count"])
	}
}

func TestHandleToolsCallGetLinesCapsAt500(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 600; i++ {
		b.WriteString("x\n")
	}
	s := mustServer(t, b.String())

	args, _ := json.Marshal(map[string]any{"start": 0, "count": 1000})
	resp := s.handleToolsCall(json.RawMessage(`1`), mustParams(t, "get_lines", args))

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result := resp.Result.(map[string]any)
	blocks := result["content"].([]contentBlock)
	if !strings.Contains(blocks[0].Text, "Lines 1-500 of 600") {
		t.Errorf("text = %q, want a 'Lines 1-500 of 600' header", blocks[0].Text)
	}
}

func TestHandleToolsCallDedupScanReturnsSamplePairs(t *testing.T) {
	s := mustServer(t, "{\"content\":\"same\"}\n{\"content\":\"same\"}\n{\"content\":\"different\"}\n")
	args, _ := json.Marshal(map[string]any{"strategy": "exact"})
	resp := s.handleToolsCall(json.RawMessage(`1`), mustParams(t, "dedup_scan", args))

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result := resp.Result.(map[string]any)
	metadata := result["metadata"].(map[string]any)
	if metadata["duplicate_count"] != 1 {
		t.Errorf("duplicate_count = %v, want 1", metadata["duplicate_count"])
	}
	pairs := metadata["sample_pairs"].([]map[string]any)
	if len(pairs) != 1 {
		t.Fatalf("len(sample_pairs) = %d, want 1", len(pairs))
	}
}

func TestHandleResourcesListAndRead(t *testing.T) {
	s := mustServer(t, "a\nb\n")

	listResp := s.handleResourcesList(json.RawMessage(`1`))
	listResult := listResp.Result.(map[string]any)
	resources := listResult["resources"].([]resourceDescriptor)
	if len(resources) != 1 || !strings.HasPrefix(resources[0].URI, "caret://dataset/") {
		t.Errorf("resources = %+v, want one caret://dataset/ entry", resources)
	}

	readResp := s.handleResourcesRead(json.RawMessage(`1`), nil)
	readResult := readResp.Result.(map[string]any)
	contents := readResult["contents"].([]map[string]any)
	if len(contents) != 1 || !strings.Contains(contents[0]["text"].(string), "a\nb") {
		t.Errorf("contents = %+v, want dataset preview text", contents)
	}
}

func mustParams(t *testing.T, name string, args json.RawMessage) json.RawMessage {
	t.Helper()
	params, err := json.Marshal(toolCallParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return params
}
