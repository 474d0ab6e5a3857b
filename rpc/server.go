package rpc

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/corpuslab/caret"
)

// State holds the dataset an MCP session operates on. Guarded by an
// RWMutex so concurrent MCP clients can read freely while a dataset swap
// (not currently exposed, but left for a future --watch mode) would take
// the write side. Mirrors mcp.rs's SharedMcpState / tokio::sync::RwLock.
type State struct {
	mu          sync.RWMutex
	Dataset     *caret.Dataset
	DatasetPath string
	commands    *caret.CommandSender
}

// Server is the MCP JSON-RPC/HTTP server over a single loaded dataset.
type Server struct {
	state    *State
	pool     *workPool
	commands *caret.CommandReceiver
}

// NewServer returns a Server over dataset, reachable as resource
// caret://dataset/<path>. A command bus is created alongside the
// dataset: tool calls that locate a specific line (toolSearchDataset's
// first match, toolGetLines' first line of the batch) emit a
// CommandJumpToLine hint on the sender half, and Commands returns the
// receiver half for an external interactive front-end to drain.
func NewServer(dataset *caret.Dataset, path string, workers int) *Server {
	sender, receiver := caret.NewCommandBus()
	s := &Server{
		state: &State{Dataset: dataset, DatasetPath: path, commands: sender},
		pool:  newWorkPool(workers),
	}
	s.commands = receiver
	return s
}

// Commands returns the receiver half of this session's command bus, for
// an external front-end to poll (TryRecv/DrainAll) once per UI tick.
func (s *Server) Commands() *caret.CommandReceiver {
	return s.commands
}

// Router builds the mux.Router serving this MCP session: POST / for
// JSON-RPC, GET /health for readiness probes, wrapped in a permissive
// CORS layer so any local LLM client (Claude Desktop, Cursor, etc.) can
// reach it without a preflight failure.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleJSONRPC).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(r)
}

// ListenAndServe starts the MCP server on 127.0.0.1:port and blocks
// until the server stops. The CLI entry point calls it as its last step.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "server": "caret-mcp"})
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, failure(nil, codeInvalidParams, "malformed JSON-RPC request: "+err.Error()))
		return
	}

	var resp jsonRPCResponse
	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(req.ID)
	case "initialized":
		resp = success(req.ID, map[string]any{})
	case "tools/list":
		resp = s.handleToolsList(req.ID)
	case "tools/call":
		resp = s.handleToolsCall(req.ID, req.Params)
	case "resources/list":
		resp = s.handleResourcesList(req.ID)
	case "resources/read":
		resp = s.handleResourcesRead(req.ID, req.Params)
	default:
		resp = failure(req.ID, codeMethodNotFound, "Method not found: "+req.Method)
	}

	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp jsonRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleInitialize(id json.RawMessage) jsonRPCResponse {
	return success(id, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: serverCapabilities{
			Tools:     capabilityFlag{ListChanged: false},
			Resources: capabilityFlag{ListChanged: false},
		},
		ServerInfo: serverInfo{Name: "caret", Version: serverVersion},
	})
}

func (s *Server) handleToolsList(id json.RawMessage) jsonRPCResponse {
	tools := []toolDescriptor{
		{
			Name: "search_dataset",
			Description: "Search the loaded dataset using regex pattern matching. " +
				"Returns matching lines with line numbers.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":         map[string]any{"type": "string", "description": "Regex pattern to search for in the dataset"},
					"max_results":   map[string]any{"type": "integer", "description": "Maximum number of results to return (default: 50)", "default": 50},
					"context_lines": map[string]any{"type": "integer", "description": "Number of surrounding lines to include (default: 0)", "default": 0},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "dataset_info",
			Description: "Get metadata about the currently loaded dataset: line count, file size, format.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "get_lines",
			Description: "Retrieve specific lines from the dataset by index range. O(1) random access via byte offsets.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start": map[string]any{"type": "integer", "description": "Start line index (0-based)"},
					"count": map[string]any{"type": "integer", "description": "Number of lines to retrieve (default: 10, max: 500)", "default": 10},
				},
				"required": []string{"start"},
			},
		},
		{
			Name:        "dedup_scan",
			Description: "Run near-duplicate detection on the dataset. Returns duplicate statistics and sample pairs.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"strategy":  map[string]any{"type": "string", "enum": []string{"exact", "simhash"}, "description": "Dedup strategy (default: simhash)", "default": "simhash"},
					"threshold": map[string]any{"type": "integer", "description": "SimHash Hamming distance threshold (default: 3)", "default": 3},
				},
			},
		},
	}
	return success(id, map[string]any{"tools": tools})
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(id json.RawMessage, params json.RawMessage) jsonRPCResponse {
	var call toolCallParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &call); err != nil {
			return failure(id, codeInvalidParams, "malformed tools/call params: "+err.Error())
		}
	}
	args := map[string]any{}
	if len(call.Arguments) > 0 {
		_ = json.Unmarshal(call.Arguments, &args)
	}

	switch call.Name {
	case "search_dataset":
		return s.toolSearchDataset(id, args)
	case "dataset_info":
		return s.toolDatasetInfo(id)
	case "get_lines":
		return s.toolGetLines(id, args)
	case "dedup_scan":
		return s.toolDedupScan(id, args)
	default:
		return failure(id, codeInvalidParams, "Unknown tool: "+call.Name)
	}
}

func argString(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

func argInt(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func textResult(text string) map[string]any {
	return map[string]any{"content": []contentBlock{{Type: "text", Text: text}}}
}

// toolSearchDataset runs a regex scan over every line, offloaded to the
// bounded worker pool since a pathological pattern can be CPU-heavy.
func (s *Server) toolSearchDataset(id json.RawMessage, args map[string]any) jsonRPCResponse {
	query := argString(args, "query", "")
	if query == "" {
		return failure(id, codeInvalidParams, "Missing required parameter: query")
	}
	maxResults := argInt(args, "max_results", 50)
	contextLines := argInt(args, "context_lines", 0)

	re, err := regexp.Compile(query)
	if err != nil {
		return failure(id, codeInternalError, "Search error: "+err.Error())
	}

	s.state.mu.RLock()
	dataset := s.state.Dataset
	s.state.mu.RUnlock()

	type match struct {
		line int
		text string
	}
	var matches []match

	s.pool.submit(func() {
		lineCount := dataset.LineCount()
		for i := 0; i < lineCount && len(matches) < maxResults; i++ {
			line, ok := dataset.GetLine(i)
			if !ok || !re.Match(line) {
				continue
			}
			if contextLines > 0 {
				start := i - contextLines
				if start < 0 {
					start = 0
				}
				end := i + contextLines + 1
				if end > lineCount {
					end = lineCount
				}
				var ctx string
				for j := start; j < end; j++ {
					ctxLine, ok := dataset.GetLine(j)
					if !ok {
						continue
					}
					marker := "   "
					if j == i {
						marker = ">>>"
					}
					ctx += fmt.Sprintf("%s L%d: %s\n", marker, j+1, ctxLine)
				}
				matches = append(matches, match{line: i, text: ctx})
			} else {
				matches = append(matches, match{line: i, text: string(line)})
			}
		}
	})

	var text string
	if len(matches) == 0 {
		text = fmt.Sprintf("No matches found for pattern: `%s`", query)
	} else {
		text = fmt.Sprintf("Found %d match(es) for `%s` in %d lines:\n\n", len(matches), query, dataset.LineCount())
		for _, m := range matches {
			text += fmt.Sprintf("L%d: %s\n", m.line+1, m.text)
		}
		s.state.commands.Send(caret.Command{Kind: caret.CommandJumpToLine, Line: matches[0].line})
	}
	return success(id, textResult(text))
}

func (s *Server) toolDatasetInfo(id json.RawMessage) jsonRPCResponse {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	ds := s.state.Dataset

	digest, err := ds.Digest()
	if err != nil {
		slog.Warn("dataset_info: digest unavailable", "error", err)
	}

	text := fmt.Sprintf("Dataset: %s\nFormat: %s\nLines: %d\nSize: %s (%d bytes)\nDigest: %s",
		s.state.DatasetPath, ds.Format().String(), ds.LineCount(), ds.SizeHuman(), ds.Size(), digest)

	metadata := map[string]any{
		"path":       s.state.DatasetPath,
		"format":     ds.Format().String(),
		"line_count": ds.LineCount(),
		"size_bytes": ds.Size(),
		"size_human": ds.SizeHuman(),
		"digest":     digest,
	}

	result := textResult(text)
	result["metadata"] = metadata
	return success(id, result)
}

func (s *Server) toolGetLines(id json.RawMessage, args map[string]any) jsonRPCResponse {
	start := argInt(args, "start", 0)
	count := argInt(args, "count", 10)
	if count > 500 {
		count = 500
	}

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	ds := s.state.Dataset

	end := start + count
	if end > ds.LineCount() {
		end = ds.LineCount()
	}

	var lines []string
	for i := start; i < end; i++ {
		line, ok := ds.GetLine(i)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("L%d: %s", i+1, line))
	}

	var text string
	if len(lines) == 0 {
		text = fmt.Sprintf("No lines found at index %d (dataset has %d lines)", start, ds.LineCount())
	} else {
		text = fmt.Sprintf("Lines %d-%d of %d:\n\n", start+1, end, ds.LineCount())
		for _, l := range lines {
			text += l + "\n"
		}
		s.state.commands.Send(caret.Command{Kind: caret.CommandJumpToLine, Line: start})
	}
	return success(id, textResult(text))
}

func (s *Server) toolDedupScan(id json.RawMessage, args map[string]any) jsonRPCResponse {
	strategyName := argString(args, "strategy", "simhash")
	threshold := argInt(args, "threshold", 3)

	strategy := caret.DedupStrategy{Exact: strategyName == "exact", Threshold: threshold}

	s.state.mu.RLock()
	dataset := s.state.Dataset
	s.state.mu.RUnlock()

	var result *caret.DedupResult
	s.pool.submit(func() {
		engine := caret.NewDedupEngine(strategy, 0)
		result = engine.Scan(dataset)
	})

	var samplePairs []map[string]any
	for i := 0; i < result.TotalLines && len(samplePairs) < 5; i++ {
		if !result.IsDuplicate(i) {
			continue
		}
		canonical := result.CanonicalMap[i]
		samplePairs = append(samplePairs, map[string]any{
			"duplicate_line":   i + 1,
			"original_line":    canonical + 1,
			"hamming_distance": result.Fingerprints[i].HammingDistance(result.Fingerprints[canonical]),
		})
	}

	text := fmt.Sprintf("Dedup Scan Results (strategy: %s):\nTotal lines: %d\nUnique: %d\nDuplicates: %d (%.1f%%)\nScan time: %.1fms",
		result.Strategy, result.TotalLines, result.UniqueCount, result.DuplicateCount, result.DedupRatio()*100,
		float64(result.Elapsed.Microseconds())/1000)

	resp := textResult(text)
	resp["metadata"] = map[string]any{
		"total_lines":     result.TotalLines,
		"unique_count":    result.UniqueCount,
		"duplicate_count": result.DuplicateCount,
		"dedup_ratio":     result.DedupRatio(),
		"elapsed_ms":      float64(result.Elapsed.Microseconds()) / 1000,
		"sample_pairs":    samplePairs,
	}
	return success(id, resp)
}

func (s *Server) handleResourcesList(id json.RawMessage) jsonRPCResponse {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	ds := s.state.Dataset

	resources := []resourceDescriptor{{
		URI:         "caret://dataset/" + s.state.DatasetPath,
		Name:        "Dataset: " + s.state.DatasetPath,
		Description: fmt.Sprintf("%s file with %d lines (%s)", ds.Format().String(), ds.LineCount(), ds.SizeHuman()),
		MimeType:    "application/jsonl",
	}}
	return success(id, map[string]any{"resources": resources})
}

func (s *Server) handleResourcesRead(id json.RawMessage, _ json.RawMessage) jsonRPCResponse {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	ds := s.state.Dataset

	previewCount := 100
	if ds.LineCount() < previewCount {
		previewCount = ds.LineCount()
	}
	var text string
	for i := 0; i < previewCount; i++ {
		line, ok := ds.GetLine(i)
		if !ok {
			continue
		}
		if i > 0 {
			text += "\n"
		}
		text += string(line)
	}

	digest, err := ds.Digest()
	if err != nil {
		slog.Warn("resources/read: digest unavailable", "error", err)
	}

	contents := []map[string]any{{
		"uri":      "caret://dataset/" + s.state.DatasetPath,
		"mimeType": "application/jsonl",
		"text":     text,
		"digest":   digest,
	}}
	return success(id, map[string]any{"contents": contents})
}
