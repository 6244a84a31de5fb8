package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
	"github.com/mailsabhi2007/SNConsultant/internal/servicenow"
)

// LiveInstanceTool inspects the connected ServiceNow instance. It routes
// the natural-language query to the most specific REST lookup it can
// recognize, falling back to a recent-changes sweep.
type LiveInstanceTool struct {
	client *servicenow.Client
}

// NewLiveInstanceTool creates the live instance inspection tool.
func NewLiveInstanceTool(client *servicenow.Client) *LiveInstanceTool {
	return &LiveInstanceTool{client: client}
}

func (t *LiveInstanceTool) Name() string {
	return "check_live_instance"
}

func (t *LiveInstanceTool) Description() string {
	return "Query the client's live ServiceNow instance for real configuration data: recent customizations, error logs, or table structure. Only use after the user has granted permission to access their instance."
}

func (t *LiveInstanceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "What to look up on the instance, e.g. 'recent changes to incident table' or 'error logs from the last day'"
			}
		},
		"required": ["query"]
	}`)
}

func (t *LiveInstanceTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}

	if t.client == nil {
		return instanceError(servicenow.ErrNotConfigured), nil
	}

	q := strings.ToLower(input.Query)
	var (
		records []servicenow.Record
		header  string
		err     error
	)
	switch {
	case strings.Contains(q, "error") || strings.Contains(q, "log"):
		header = "Error logs from the last 24 hours:"
		records, err = t.client.ErrorLogs(ctx)
	case strings.Contains(q, "schema") || strings.Contains(q, "field") || strings.Contains(q, "column"):
		table := guessTable(q)
		header = fmt.Sprintf("Schema for table %q:", table)
		records, err = t.client.TableSchema(ctx, table)
	default:
		header = "Recent customizations (last 7 days):"
		records, err = t.client.RecentChanges(ctx, 7)
	}
	if err != nil {
		return instanceError(err), nil
	}
	return &agent.ToolResult{Content: formatRecords(header, records)}, nil
}

// TableSchemaTool returns the dictionary entries for one table.
type TableSchemaTool struct {
	client *servicenow.Client
}

// NewTableSchemaTool creates the table schema lookup tool.
func NewTableSchemaTool(client *servicenow.Client) *TableSchemaTool {
	return &TableSchemaTool{client: client}
}

func (t *TableSchemaTool) Name() string {
	return "check_table_schema"
}

func (t *TableSchemaTool) Description() string {
	return "Look up the field definitions (name, type, label) of a specific table on the client's live ServiceNow instance."
}

func (t *TableSchemaTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"table": {
				"type": "string",
				"description": "The internal table name, e.g. 'incident' or 'sc_req_item'"
			}
		},
		"required": ["table"]
	}`)
}

func (t *TableSchemaTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Table string `json:"table"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if strings.TrimSpace(input.Table) == "" {
		return &agent.ToolResult{Content: "table name is required", IsError: true}, nil
	}
	if t.client == nil {
		return instanceError(servicenow.ErrNotConfigured), nil
	}

	records, err := t.client.TableSchema(ctx, input.Table)
	if err != nil {
		return instanceError(err), nil
	}
	return &agent.ToolResult{
		Content: formatRecords(fmt.Sprintf("Schema for table %q:", input.Table), records),
	}, nil
}

// RecentChangesTool lists recent non-system customizations on the instance.
type RecentChangesTool struct {
	client *servicenow.Client
}

// NewRecentChangesTool creates the recent customizations tool.
func NewRecentChangesTool(client *servicenow.Client) *RecentChangesTool {
	return &RecentChangesTool{client: client}
}

func (t *RecentChangesTool) Name() string {
	return "fetch_recent_changes"
}

func (t *RecentChangesTool) Description() string {
	return "List customizations made on the client's live ServiceNow instance in the last N days, excluding system and admin activity."
}

func (t *RecentChangesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"days": {
				"type": "integer",
				"description": "How many days back to look (default 7)"
			}
		}
	}`)
}

func (t *RecentChangesTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Days int `json:"days"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if input.Days <= 0 {
		input.Days = 7
	}
	if t.client == nil {
		return instanceError(servicenow.ErrNotConfigured), nil
	}

	records, err := t.client.RecentChanges(ctx, input.Days)
	if err != nil {
		return instanceError(err), nil
	}
	return &agent.ToolResult{
		Content: formatRecords(fmt.Sprintf("Customizations in the last %d days:", input.Days), records),
	}, nil
}

// ErrorLogsTool fetches recent error-level syslog entries.
type ErrorLogsTool struct {
	client *servicenow.Client
}

// NewErrorLogsTool creates the error log tool.
func NewErrorLogsTool(client *servicenow.Client) *ErrorLogsTool {
	return &ErrorLogsTool{client: client}
}

func (t *ErrorLogsTool) Name() string {
	return "get_error_logs"
}

func (t *ErrorLogsTool) Description() string {
	return "Fetch error-level system log entries from the last 24 hours on the client's live ServiceNow instance."
}

func (t *ErrorLogsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ErrorLogsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.client == nil {
		return instanceError(servicenow.ErrNotConfigured), nil
	}
	records, err := t.client.ErrorLogs(ctx)
	if err != nil {
		return instanceError(err), nil
	}
	return &agent.ToolResult{
		Content: formatRecords("Error logs from the last 24 hours:", records),
	}, nil
}

func instanceError(err error) *agent.ToolResult {
	if errors.Is(err, servicenow.ErrNotConfigured) {
		return &agent.ToolResult{
			Content: "No live instance is configured. Ask the user to set SERVICENOW_INSTANCE_URL, SERVICENOW_USERNAME, and SERVICENOW_PASSWORD.",
			IsError: true,
		}
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Instance query failed: %v", err),
		IsError: true,
	}
}

func formatRecords(header string, records []servicenow.Record) string {
	if len(records) == 0 {
		return header + "\n(no records found)"
	}
	var out strings.Builder
	out.WriteString(header)
	for i, r := range records {
		fmt.Fprintf(&out, "\n%d. %s", i+1, summarizeRecord(r))
	}
	return out.String()
}

// summarizeRecord renders the fields the agents actually reason about,
// falling back to a compact JSON dump for unfamiliar tables.
func summarizeRecord(r servicenow.Record) string {
	var parts []string
	for _, f := range []string{"name", "element", "internal_type", "column_label", "sys_updated_by", "sys_created_on", "message", "source", "level", "type", "target_name"} {
		if v := r.Get(f); v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", f, v))
		}
	}
	if len(parts) == 0 {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprintf("%v", map[string]any(r))
		}
		return string(raw)
	}
	return strings.Join(parts, ", ")
}

func guessTable(q string) string {
	for _, candidate := range []string{"incident", "change_request", "sc_req_item", "sc_request", "problem", "cmdb_ci", "sys_user", "task"} {
		if strings.Contains(q, candidate) {
			return candidate
		}
	}
	return "incident"
}
