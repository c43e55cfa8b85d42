// Package mcp provides a Model Context Protocol server for QLink.
//
// The server is a thin client of the REST API: every tool call becomes one
// HTTP request against the api package routes, and the JSON reply is rendered
// as text for the agent.
//
// MCP Tools:
//   - create_session, list_sessions, game_state
//   - move, activate, point
//   - pause, resume, save_game, load_game
//   - list_configs, game_instructions
//
// Boards are drawn one character per cell: '.' for an empty cell, the form
// digit for a tile, a letter for a selected tile, '@' and '&' for the
// cursors, '+' for a power-up and '*' for a hinted tile.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
