// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Quire session tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ostberg/quire/internal/sessionservice"
)

// Server wraps the MCP server with Quire tools.
type Server struct {
	mcp *server.MCPServer
	svc *sessionservice.Service
}

// New creates a new MCP server with all Quire tools registered.
func New(svc *sessionservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Quire",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List documents currently open in the editing session, with dirty/conflict state."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Open a workspace file into the editing session and return its content."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the file (e.g. src/main.go)")),
	), s.openDocument)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the current in-memory buffer of an open document. "+
			"This reflects unsaved edits, unlike reading the file from disk."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of an open document")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("update_document",
		mcp.WithDescription("Replace the in-memory buffer of an open document. Nothing is written "+
			"to disk until save_document runs or auto-save fires. Read the editing contract first "+
			"via the get_edit_contract tool or the quire://edit-contract resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of an open document")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full replacement content, UTF-8")),
	), s.updateDocument)

	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Flush an open document's buffer to disk. A rolling backup snapshot "+
			"is taken before the file is overwritten."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of an open document")),
	), s.saveDocument)

	s.mcp.AddTool(mcp.NewTool("close_document",
		mcp.WithDescription("Close an open document. Refused when it has unsaved changes unless discard is true."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of an open document")),
		mcp.WithString("discard", mcp.Description("Set to \"true\" to drop unsaved changes")),
	), s.closeDocument)

	s.mcp.AddTool(mcp.NewTool("search_history",
		mcp.WithDescription("Full-text search over the last-saved content of every document."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchHistory)

	s.mcp.AddTool(mcp.NewTool("list_backups",
		mcp.WithDescription("List backup snapshots for a document, oldest first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the document")),
	), s.listBackups)

	s.mcp.AddTool(mcp.NewTool("restore_backup",
		mcp.WithDescription("Load a backup snapshot's content back into the document buffer. "+
			"Disk is untouched until the next save."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the document")),
		mcp.WithString("backup_path", mcp.Required(), mcp.Description("Snapshot path from list_backups")),
	), s.restoreBackup)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Fetch text from an http(s) URL or data: URI and open it as a new "+
			"unsaved document in the session."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Source URL (http, https, or data URI)")),
		mcp.WithString("path", mcp.Description("Target path; derived from the URL when omitted")),
	), s.importDocument)

	s.mcp.AddTool(mcp.NewTool("get_edit_contract",
		mcp.WithDescription("Returns the Quire editing contract. Call this before updating "+
			"documents to understand buffer, save, and conflict semantics."),
	), s.getEditContract)

	// Resource: editing contract.
	s.mcp.AddResource(
		mcp.NewResource("quire://edit-contract", "Editing Contract",
			mcp.WithResourceDescription("Buffer, save, backup, and conflict semantics every editing client must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEditContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.ListDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(docs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) openDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.OpenDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot open %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(doc.Content), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not open: %s", path)), nil
	}
	return mcp.NewToolResultText(doc.Content), nil
}

func (s *Server) updateDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.UpdateBuffer(ctx, path, content)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot update %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s (dirty=%t)", doc.Path, doc.Dirty)), nil
}

func (s *Server) saveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.SaveDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot save %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s (checksum %s)", doc.Path, doc.Checksum)), nil
}

func (s *Server) closeDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	discard := false
	if v, dErr := req.RequireString("discard"); dErr == nil {
		discard, _ = strconv.ParseBool(v)
	}
	if err := s.svc.CloseDocument(ctx, path, discard); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot close %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("closed: %s", path)), nil
}

func (s *Server) searchHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchSaved(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listBackups(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recs, err := s.svc.ListBackups(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("no backups found"), nil
	}
	var lines []string
	for _, rec := range recs {
		lines = append(lines, fmt.Sprintf("%s\t%d bytes\t%s", rec.BackupPath, rec.Size, rec.CreatedAt.Format("2006-01-02 15:04:05")))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) restoreBackup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	backupPath, err := req.RequireString("backup_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.RestoreBackup(ctx, path, backupPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot restore %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("restored %s into buffer of %s; save to persist", backupPath, doc.Path)), nil
}

func (s *Server) getEditContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EditContract), nil
}

func (s *Server) readEditContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "quire://edit-contract",
			MIMEType: "text/markdown",
			Text:     EditContract,
		},
	}, nil
}
