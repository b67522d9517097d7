// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Quire content tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/supervisor"
)

// FormatURI addresses the article format resource.
const FormatURI = "quire://article-format"

// Server wraps the MCP server with Quire tools.
type Server struct {
	mcp *server.MCPServer
	sv  *supervisor.Supervisor
}

// New creates a new MCP server with all Quire tools registered.
func New(sv *supervisor.Supervisor) *Server {
	s := &Server{sv: sv}

	s.mcp = server.NewMCPServer(
		"Quire",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_content",
		mcp.WithDescription("Full-text search through article and note titles, descriptions, tags and bodies. "+
			"Note results carry a \"notes/\" slug prefix."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchContent)

	s.mcp.AddTool(mcp.NewTool("read_article",
		mcp.WithDescription("Read a published article with its front matter and Markdown body."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Article slug (e.g. hello-world)")),
	), s.readArticle)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a published note with its front matter and Markdown body."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note address: category/slug or slug")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_articles",
		mcp.WithDescription("List published articles, newest first."),
		mcp.WithString("tag", mcp.Description("Only articles carrying this tag")),
		mcp.WithString("category", mcp.Description("Only articles in this category")),
		mcp.WithNumber("page", mcp.Description("Page number, 1-based")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 10)")),
	), s.listArticles)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List the tags used by published articles or notes."),
		mcp.WithString("collection", mcp.Description("articles (default) or notes")),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("create_article",
		mcp.WithDescription("Create a new article. The slug is derived from the title. "+
			"Read the format first via get_article_format or the "+FormatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Article title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body without front matter")),
		mcp.WithString("description", mcp.Description("One-line summary")),
		mcp.WithString("category", mcp.Description("Optional category")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Optional tags")),
		mcp.WithBoolean("draft", mcp.Description("Keep the article unpublished")),
	), s.createArticle)

	s.mcp.AddTool(mcp.NewTool("get_article_format",
		mcp.WithDescription("Returns the Quire article format. "+
			"Call this before creating articles to ensure correct structure."),
	), s.getArticleFormat)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Article Format",
			mcp.WithResourceDescription("Front matter and body layout of Quire articles and notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(what string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", what))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.sv.Search(ctx, query, req.GetInt("limit", 0), true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) readArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.sv.Article(slug)
	if err != nil {
		return errorResult(slug, err), nil
	}
	return jsonResult(c)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.sv.Note(path)
	if err != nil {
		return errorResult(path, err), nil
	}
	return jsonResult(c)
}

func (s *Server) listArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := supervisor.Filter{
		Tag:      req.GetString("tag", ""),
		Category: req.GetString("category", ""),
	}
	p, err := s.sv.List(ctx, supervisor.Articles, f, req.GetInt("page", 0), req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(p)
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c := supervisor.Collection(req.GetString("collection", string(supervisor.Articles)))
	tags, err := s.sv.Tags(c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tags)
}

func (s *Server) createArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d := supervisor.Draft{
		Title:   title,
		Content: content,
		Tags:    req.GetStringSlice("tags", nil),
	}
	if v := req.GetString("description", ""); v != "" {
		d.Description = &v
	}
	if v := req.GetString("category", ""); v != "" {
		d.Category = &v
	}
	if v := req.GetBool("draft", false); v {
		d.Draft = &v
	}

	e, err := s.sv.CreateArticle(ctx, d)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", e.Slug)), nil
}

func (s *Server) getArticleFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArticleFormat), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     ArticleFormat,
		},
	}, nil
}
