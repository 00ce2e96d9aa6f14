package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/pipeline"
	"github.com/lukman83/kidkazz-catalog/internal/store"
)

func (s *Server) registerTools(srv *server.MCPServer) {
	// search_products
	searchTool := mcp.NewTool("search_products",
		mcp.WithDescription("Search a marketplace, resolve product images and save the products to the catalog"),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Search keyword"),
		),
		mcp.WithString("platform",
			mcp.Description("Target platform: wildberries or ozon (default: "+s.defaultPlatform+")"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of products to save (default: 10)"),
		),
		mcp.WithString("strategy",
			mcp.Description("Selection strategy: default or popular_midrange"),
		),
	)
	srv.AddTool(searchTool, s.handleSearchProducts)

	// resolve_image
	resolveTool := mcp.NewTool("resolve_image",
		mcp.WithDescription("Resolve a working image URL for a product id"),
		mcp.WithString("product_id",
			mcp.Required(),
			mcp.Description("Marketplace product id"),
		),
		mcp.WithString("platform",
			mcp.Description("Target platform (default: "+s.defaultPlatform+")"),
		),
	)
	srv.AddTool(resolveTool, s.handleResolveImage)

	// get_product
	productTool := mcp.NewTool("get_product",
		mcp.WithDescription("Get a stored catalog product; with refresh=true, update its price and stock first"),
		mcp.WithString("product_id",
			mcp.Required(),
			mcp.Description("Marketplace product id"),
		),
		mcp.WithString("platform",
			mcp.Description("Target platform (default: "+s.defaultPlatform+")"),
		),
		mcp.WithBoolean("refresh",
			mcp.Description("Refresh price and availability from the marketplace"),
		),
	)
	srv.AddTool(productTool, s.handleGetProduct)

	// catalog_stats
	statsTool := mcp.NewTool("catalog_stats",
		mcp.WithDescription("Price statistics and rating distribution of stored products"),
		mcp.WithString("platform",
			mcp.Description("Platform filter (default: all)"),
		),
		mcp.WithString("keyword",
			mcp.Description("Only products saved by this search keyword"),
		),
	)
	srv.AddTool(statsTool, s.handleCatalogStats)
}

func (s *Server) handleSearchProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword := request.GetString("keyword", "")
	if keyword == "" {
		return mcp.NewToolResultError("keyword is required"), nil
	}

	batch, err := s.pipeline.SearchAndSave(ctx, pipeline.Query{
		Text:     keyword,
		Platform: request.GetString("platform", s.defaultPlatform),
		Limit:    request.GetInt("limit", 10),
		Strategy: request.GetString("strategy", pipeline.StrategyDefault),
	})
	if err != nil {
		s.logger.Warn("search tool failed", logging.String("keyword", keyword), logging.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
	}
	return jsonResult(batch)
}

func (s *Server) handleResolveImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("product_id", "")
	if id == "" {
		return mcp.NewToolResultError("product_id is required"), nil
	}
	outcome, err := s.pipeline.ResolveImage(ctx, id, request.GetString("platform", s.defaultPlatform))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("platform error: %v", err)), nil
	}
	return jsonResult(outcome)
}

func (s *Server) handleGetProduct(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("product_id", "")
	if id == "" {
		return mcp.NewToolResultError("product_id is required"), nil
	}
	platformName := request.GetString("platform", s.defaultPlatform)

	get := s.pipeline.Show
	if request.GetBool("refresh", false) {
		get = s.pipeline.Refresh
	}
	rec, err := get(ctx, id, platformName)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("product %s is not in the catalog; use search_products first", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("product error: %v", err)), nil
	}
	return jsonResult(rec)
}

func (s *Server) handleCatalogStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.pipeline.Stats(ctx, store.Filter{
		Platform:    request.GetString("platform", ""),
		SearchQuery: request.GetString("keyword", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
	}
	return jsonResult(stats)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
