// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Lattice tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/parser"
)

const contractURI = "lattice://note-format"

// Server wraps the MCP server with Lattice tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all Lattice tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}
	if version == "" {
		version = "dev"
	}

	s.mcp = server.NewMCPServer(
		"Lattice",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note: title, space, plain text, links and outline."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note from plain text and make it the active note. "+
			"Read the contract via get_note_contract or the "+contractURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("text", mcp.Description("Plain text; blank lines separate paragraphs")),
		mcp.WithString("space", mcp.Description("Space id (default: the active note's space)")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the Lattice note format contract."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes as id and title, optionally within one space."),
		mcp.WithString("space", mcp.Description("Optional space id")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_links",
		mcp.WithDescription("List the notes linked to the specified note, with reasons."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.getLinks)

	s.mcp.AddTool(mcp.NewTool("link_notes",
		mcp.WithDescription("Link two notes. Linking an already linked pair is a no-op."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("reason", mcp.Description("Why the notes are related")),
	), s.linkNotes)

	s.mcp.AddTool(mcp.NewTool("get_outline",
		mcp.WithDescription("List the headings of a note in document order."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.getOutline)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("How Lattice stores note content and links."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

type noteView struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Space    string           `json:"space"`
	Text     string           `json:"text"`
	Links    []models.Link    `json:"links"`
	Headings []models.Heading `json:"headings"`
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return errorResult(id, err), nil
	}
	return jsonResult(noteView{
		ID:       n.ID,
		Title:    n.Title,
		Space:    n.Space.Name,
		Text:     parser.PlainText(n.Content),
		Links:    n.Links,
		Headings: n.Headings,
	}), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content := ""
	if text := req.GetString("text", ""); strings.TrimSpace(text) != "" {
		content = parser.Encode(parser.FromParagraphs(text))
	}
	n, err := s.svc.CreateNote(ctx, req.GetString("space", ""), title, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes := s.svc.ListNotes(ctx, req.GetString("space", ""))
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, n.ID+"\t"+n.Title)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func (s *Server) getLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Links(ctx, id)
	if err != nil {
		return errorResult(id, err), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no links found"), nil
	}
	lines := make([]string, 0, len(links))
	for _, l := range links {
		line := l.Other(id)
		if l.Reason != "" {
			line += "\t" + l.Reason
		}
		lines = append(lines, line)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) linkNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	created, err := s.svc.AddLink(ctx, models.Link{Source: source, Target: target, Reason: req.GetString("reason", "")})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !created {
		return mcp.NewToolResultText("already linked"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("linked: %s <-> %s", source, target)), nil
}

func (s *Server) getOutline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	headings, err := s.svc.Outline(ctx, id)
	if err != nil {
		return errorResult(id, err), nil
	}
	if len(headings) == 0 {
		return mcp.NewToolResultText("no headings"), nil
	}
	lines := make([]string, 0, len(headings))
	for _, h := range headings {
		lines = append(lines, strings.Repeat("  ", max(h.Level-1, 0))+"- "+h.Text)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}
