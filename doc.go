// Package hectorkb runs knowledge bases that agents search with metadata
// filters.
//
// A knowledge base ingests text, local files, URLs, Wikipedia topics and
// files from remote content sources (S3, GCS, SharePoint and GitHub),
// chunks and embeds them into a vector store, and records every content
// item in a contents database. Search requests carry filters that are
// validated against the metadata keys the knowledge base has seen and
// reconciled with the filters configured for it, so an agent can never
// break a search with an unknown key.
//
// # Quick Start
//
//	yaml
//	knowledge:
//	  company:
//	    description: "Company documents"
//	    search:
//	      agentic_filters: true
//
// Start the server:
//
//	hectorkb serve --config hectorkb.yaml
//
// Or search from the command line:
//
//	hectorkb search "quarterly revenue" --filters '{"region": "eu"}'
//
// # Packages
//
//   - pkg/filter: predicates, filter sets, validation and reconciliation
//   - pkg/knowledge: the knowledge base and its remote content sources
//   - pkg/tool/searchtool: the search tools handed to agents
//   - pkg/server and pkg/mcpserver: HTTP and MCP surfaces
package hectorkb
